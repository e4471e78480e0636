// Package poll decides which register ranges to read on each tick.
// Registers belong to cadence tiers; contiguous addresses within the
// configured gap are coalesced into one range read, and registers that
// derived metrics depend on are kept in the rotation even when no
// consumer reads them directly.
package poll

import (
	"fmt"
	"sort"
	"time"

	"marstek-monitor/internal/battery"
)

// Modbus caps a single holding-register read at 125 words.
const maxGroupWords = 120

// Intervals maps each tier to its polling interval.
type Intervals map[battery.Tier]time.Duration

// DefaultIntervals mirrors the device defaults: fast telemetry every
// few seconds, identity fields every ten minutes.
func DefaultIntervals() Intervals {
	return Intervals{
		battery.TierHigh:    5 * time.Second,
		battery.TierMedium:  30 * time.Second,
		battery.TierLow:     60 * time.Second,
		battery.TierVeryLow: 600 * time.Second,
	}
}

// Group is one address-contiguous range read covering the listed
// registers. Tier is the fastest member tier; Tiers lists the due
// tiers the group was seeded from, for cadence bookkeeping.
type Group struct {
	Start uint16
	Count uint16
	Tier  battery.Tier
	Tiers []battery.Tier
	Regs  []battery.Register
}

// Key identifies the group across cycles for failure tracking.
func (g Group) Key() string {
	return fmt.Sprintf("%d+%d", g.Start, g.Count)
}

// Config tunes a Scheduler.
type Config struct {
	Intervals Intervals
	// CoalesceGap is the largest address gap (in words) still merged
	// into one range read.
	CoalesceGap uint16
	// Active lists logical names with an active consumer. Empty means
	// every readable register is consumed.
	Active []string
	// DependencyInputs are logical names derived metrics consume;
	// they stay polled regardless of Active.
	DependencyInputs []string
}

type Scheduler struct {
	regs      []battery.Register // address ordered
	intervals Intervals
	coalesce  uint16
	allActive bool
	active    map[string]bool
	deps      map[string]bool
	lastPoll  map[battery.Tier]time.Time
}

func NewScheduler(regs []battery.Register, cfg Config) *Scheduler {
	sorted := make([]battery.Register, len(regs))
	copy(sorted, regs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	intervals := DefaultIntervals()
	for tier, d := range cfg.Intervals {
		if d > 0 {
			intervals[tier] = d
		}
	}

	s := &Scheduler{
		regs:      sorted,
		intervals: intervals,
		coalesce:  cfg.CoalesceGap,
		allActive: len(cfg.Active) == 0,
		active:    make(map[string]bool, len(cfg.Active)),
		deps:      make(map[string]bool, len(cfg.DependencyInputs)),
		lastPoll:  make(map[battery.Tier]time.Time),
	}
	for _, name := range cfg.Active {
		s.active[name] = true
	}
	for _, name := range cfg.DependencyInputs {
		s.deps[name] = true
	}
	return s
}

func (s *Scheduler) dependency(r battery.Register) bool {
	return r.Dependency || s.deps[r.Name]
}

// pollable reports whether the register is read at all: it must be
// readable and either consumed or depended upon.
func (s *Scheduler) pollable(r battery.Register) bool {
	if r.Access == battery.WriteOnly {
		return false
	}
	if s.dependency(r) {
		return true
	}
	return s.allActive || s.active[r.Name]
}

func (s *Scheduler) due(tier battery.Tier, now time.Time) bool {
	last, polled := s.lastPoll[tier]
	if !polled {
		return true
	}
	return now.Sub(last) >= s.intervals[tier]
}

// Plan returns the range reads for this tick: due-tier pollable
// registers coalesced by address, plus nearby pollable registers
// absorbed into a group's span so a fast tier's cadence governs any
// address range it covers.
func (s *Scheduler) Plan(now time.Time) []Group {
	var seeds []battery.Register
	for _, r := range s.regs {
		if s.pollable(r) && s.due(r.Tier, now) {
			seeds = append(seeds, r)
		}
	}
	if len(seeds) == 0 {
		return nil
	}

	var groups []Group
	for _, r := range seeds {
		if n := len(groups); n > 0 {
			g := &groups[n-1]
			end := uint32(g.Start) + uint32(g.Count)
			span := uint32(r.Addr) + uint32(r.Words) - uint32(g.Start)
			if uint32(r.Addr) <= end+uint32(s.coalesce) && span <= maxGroupWords {
				g.Regs = append(g.Regs, r)
				g.Count = uint16(span)
				continue
			}
		}
		groups = append(groups, Group{Start: r.Addr, Count: r.Words, Regs: []battery.Register{r}})
	}

	for i := range groups {
		s.absorb(&groups[i])
	}
	groups = dedupe(groups)
	for i := range groups {
		s.finish(&groups[i])
	}
	return groups
}

// dedupe drops groups whose span was swallowed by another group's
// absorption; the survivor already reads (and lists) their registers.
func dedupe(groups []Group) []Group {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	var out []Group
	for _, g := range groups {
		covered := false
		for _, kept := range out {
			if g.Start >= kept.Start && uint32(g.Start)+uint32(g.Count) <= uint32(kept.Start)+uint32(kept.Count) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// absorb pulls non-due pollable registers into the group when they sit
// inside its span or within the coalesce gap of its edges. Reading
// them costs nothing extra, and it keeps a shared address range on the
// fastest cadence touching it.
func (s *Scheduler) absorb(g *Group) {
	for changed := true; changed; {
		changed = false
		for _, r := range s.regs {
			if !s.pollable(r) || g.contains(r.Name) {
				continue
			}
			start, end := uint32(g.Start), uint32(g.Start)+uint32(g.Count)
			rStart, rEnd := uint32(r.Addr), uint32(r.Addr)+uint32(r.Words)

			inside := rStart >= start && rEnd <= end
			before := rEnd <= start && start-rEnd <= uint32(s.coalesce)
			after := rStart >= end && rStart-end <= uint32(s.coalesce)
			if !inside && !before && !after {
				continue
			}

			newStart := min32(start, rStart)
			newEnd := max32(end, rEnd)
			if newEnd-newStart > maxGroupWords {
				continue
			}
			g.Regs = append(g.Regs, r)
			g.Start = uint16(newStart)
			g.Count = uint16(newEnd - newStart)
			changed = true
		}
	}
}

func (s *Scheduler) finish(g *Group) {
	sort.Slice(g.Regs, func(i, j int) bool { return g.Regs[i].Addr < g.Regs[j].Addr })
	tiers := make(map[battery.Tier]bool)
	g.Tier = g.Regs[0].Tier
	for _, r := range g.Regs {
		if r.Tier.Faster(g.Tier) {
			g.Tier = r.Tier
		}
		tiers[r.Tier] = true
	}
	for _, t := range battery.Tiers {
		if tiers[t] {
			g.Tiers = append(g.Tiers, t)
		}
	}
}

func (g *Group) contains(name string) bool {
	for _, r := range g.Regs {
		if r.Name == name {
			return true
		}
	}
	return false
}

// MarkPolled records a successful poll of the given tiers. Tiers with
// a failed group are not marked and come due again on the next tick;
// that is the only retry path.
func (s *Scheduler) MarkPolled(tiers []battery.Tier, now time.Time) {
	for _, t := range tiers {
		s.lastPoll[t] = now
	}
}

// Interval exposes the configured interval of a tier.
func (s *Scheduler) Interval(tier battery.Tier) time.Duration {
	return s.intervals[tier]
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
