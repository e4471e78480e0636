// Package coordinator drives the polling of a Venus battery: it asks
// the scheduler what to read, runs the reads against the transport,
// decodes the words, recomputes derived metrics and publishes the
// merged state snapshot. It also owns the serialized write path.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"marstek-monitor/internal/battery"
	"marstek-monitor/internal/derived"
	"marstek-monitor/internal/poll"
)

// Transport is the register I/O the coordinator needs. It is agnostic
// to whether reads hit a real gateway or a simulation.
type Transport interface {
	ReadRegisters(start, count uint16) ([]uint16, error)
	WriteRegisters(start uint16, words []uint16) error
}

// Reconnecter is implemented by transports that can re-establish a
// broken session. When the transport supports it, a failed read or
// write triggers one reconnect and one retry; a TCP session that died
// between cycles heals instead of failing every tick.
type Reconnecter interface {
	Reconnect() error
}

// Config wires a Coordinator.
type Config struct {
	Variant   battery.Variant
	Catalog   *battery.Catalog // nil = built-in catalog
	Intervals poll.Intervals
	// CoalesceGap is the largest address gap merged into one read.
	CoalesceGap uint16
	// ActiveValues limits polling to these logical names (plus
	// dependencies). Empty = everything readable.
	ActiveValues []string
	// FailureThreshold is the consecutive failure count after which a
	// poll group is reported degraded. Zero means 3.
	FailureThreshold int
	// OnDegraded, when set, is invoked once per group as it crosses
	// the threshold.
	OnDegraded func(group string, failures int)
}

// GroupHealth is the diagnostic state of one poll group.
type GroupHealth struct {
	Failures int  `json:"failures"`
	Degraded bool `json:"degraded"`
}

type Coordinator struct {
	transport Transport
	variant   battery.Variant
	regs      []battery.Register
	byName    map[string]battery.Register
	sched     *poll.Scheduler
	engine    *derived.Engine
	snap      *Snapshot

	// ioMu serializes every transport call: poll reads never
	// interleave with writes on the wire.
	ioMu sync.Mutex

	healthMu   sync.Mutex
	failures   map[string]int
	degraded   map[string]bool
	threshold  int
	onDegraded func(string, int)

	tick time.Duration
}

func New(transport Transport, cfg Config) (*Coordinator, error) {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = battery.DefaultCatalog()
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	regs, err := catalog.Resolve(cfg.Variant)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	engine := derived.NewEngine(derived.Defaults())
	sched := poll.NewScheduler(regs, poll.Config{
		Intervals:        cfg.Intervals,
		CoalesceGap:      cfg.CoalesceGap,
		Active:           cfg.ActiveValues,
		DependencyInputs: engine.Inputs(),
	})

	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}

	byName := make(map[string]battery.Register, len(regs))
	tick := sched.Interval(battery.TierHigh)
	for _, r := range regs {
		byName[r.Name] = r
		if d := sched.Interval(r.Tier); d < tick {
			tick = d
		}
	}

	return &Coordinator{
		transport:  transport,
		variant:    cfg.Variant,
		regs:       regs,
		byName:     byName,
		sched:      sched,
		engine:     engine,
		snap:       NewSnapshot(),
		failures:   make(map[string]int),
		degraded:   make(map[string]bool),
		threshold:  threshold,
		onDegraded: cfg.OnDegraded,
		tick:       tick,
	}, nil
}

// Run polls until the context is cancelled, ticking at the fastest
// tier interval. Each cycle runs to completion before the next starts,
// so transport access stays serialized without a lock per register.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Printf("Starting coordinator, tick %s", c.tick)

	c.RunCycle(time.Now())

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Coordinator stopped")
			return nil
		case now := <-ticker.C:
			c.RunCycle(now)
		}
	}
}

// RunCycle performs one poll cycle at the given instant. A failed
// group leaves its entries stale and its tier due; it never aborts the
// other groups or the derived recompute.
func (c *Coordinator) RunCycle(now time.Time) {
	groups := c.sched.Plan(now)
	if len(groups) == 0 {
		return
	}

	var changed []string
	allTiers := make(map[battery.Tier]bool)
	failedTiers := make(map[battery.Tier]bool)

	for _, g := range groups {
		for _, t := range g.Tiers {
			allTiers[t] = true
		}

		words, err := c.readGroup(g)
		if err == nil && len(words) != int(g.Count) {
			err = fmt.Errorf("short read: got %d words, want %d", len(words), g.Count)
		}
		if err != nil {
			log.Printf("Error reading group %s: %v", g.Key(), err)
			c.recordFailure(g.Key())
			for _, t := range g.Tiers {
				failedTiers[t] = true
			}
			continue
		}
		c.recordSuccess(g.Key())

		for _, r := range g.Regs {
			off := int(r.Addr) - int(g.Start)
			val, err := battery.Decode(r, words[off:off+int(r.Words)])
			if err != nil {
				log.Printf("Error decoding %s: %v", r.Name, err)
				continue
			}
			val.Updated = now
			val.Valid = true
			c.snap.Set(val)
			changed = append(changed, r.Name)
		}
	}

	for _, v := range c.engine.Recompute(c.snap.Get, changed, now) {
		c.snap.Set(v)
	}

	var polled []battery.Tier
	for t := range allTiers {
		if !failedTiers[t] {
			polled = append(polled, t)
		}
	}
	c.sched.MarkPolled(polled, now)
}

func (c *Coordinator) readGroup(g poll.Group) ([]uint16, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	words, err := c.transport.ReadRegisters(g.Start, g.Count)
	if err != nil {
		if r, ok := c.transport.(Reconnecter); ok {
			log.Printf("Reconnecting after read failure: %v", err)
			if rerr := r.Reconnect(); rerr == nil {
				words, err = c.transport.ReadRegisters(g.Start, g.Count)
			}
		}
	}
	return words, err
}

// Get returns the current decoded value for a logical name.
func (c *Coordinator) Get(name string) (battery.Value, bool) {
	return c.snap.Get(name)
}

// Values returns a copy of the whole snapshot.
func (c *Coordinator) Values() map[string]battery.Value {
	return c.snap.All()
}

// Subscribe streams updates for one logical name.
func (c *Coordinator) Subscribe(name string) <-chan battery.Value {
	return c.snap.Subscribe(name)
}

// Data returns a flattened reading of the snapshot.
func (c *Coordinator) Data() *battery.BatteryData {
	now := time.Now()
	return battery.DataFromValues(c.snap.All(), now, 3*c.tick)
}

// SubmitWrite validates and issues a control write. Validation errors
// never reach the transport; transport errors leave the snapshot
// untouched. On success the new value is published optimistically and
// stays provisional: the next successful read of that register is
// authoritative and may overwrite it (the device is known to report
// the old value for a while after an accepted write).
func (c *Coordinator) SubmitWrite(name string, value float64) error {
	reg, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("write %q: unknown register", name)
	}

	words, err := battery.Encode(reg, value)
	if err != nil {
		return err
	}

	c.ioMu.Lock()
	err = c.transport.WriteRegisters(reg.Addr, words)
	if err != nil {
		if r, ok := c.transport.(Reconnecter); ok {
			log.Printf("Reconnecting after write failure: %v", err)
			if rerr := r.Reconnect(); rerr == nil {
				err = c.transport.WriteRegisters(reg.Addr, words)
			}
		}
	}
	c.ioMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}

	val, err := battery.Decode(reg, words)
	if err == nil {
		val.Updated = time.Now()
		val.Valid = true
		c.snap.Set(val)
	}
	return nil
}

// Registers exposes the resolved active catalog.
func (c *Coordinator) Registers() []battery.Register {
	return c.regs
}

// Variant returns the device generation the catalog was resolved for.
func (c *Coordinator) Variant() battery.Variant {
	return c.variant
}

func (c *Coordinator) recordFailure(key string) {
	c.healthMu.Lock()
	c.failures[key]++
	n := c.failures[key]
	crossed := n == c.threshold && !c.degraded[key]
	if crossed {
		c.degraded[key] = true
	}
	c.healthMu.Unlock()

	if crossed {
		log.Printf("Poll group %s degraded after %d consecutive failures", key, n)
		if c.onDegraded != nil {
			c.onDegraded(key, n)
		}
	}
}

func (c *Coordinator) recordSuccess(key string) {
	c.healthMu.Lock()
	if c.degraded[key] {
		log.Printf("Poll group %s recovered", key)
	}
	delete(c.failures, key)
	delete(c.degraded, key)
	c.healthMu.Unlock()
}

// Health reports per-group failure diagnostics for groups that have
// failed at least once since their last success.
func (c *Coordinator) Health() map[string]GroupHealth {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	out := make(map[string]GroupHealth, len(c.failures))
	for key, n := range c.failures {
		out[key] = GroupHealth{Failures: n, Degraded: c.degraded[key]}
	}
	return out
}

// Degraded reports whether any poll group is currently degraded.
func (c *Coordinator) Degraded() bool {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	return len(c.degraded) > 0
}
