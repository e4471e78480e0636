// Package derived computes metrics from already-decoded battery values.
// Metrics never touch raw registers; they declare their inputs by
// logical name and are recomputed after each decode batch.
package derived

import (
	"math"
	"time"

	"marstek-monitor/internal/battery"
)

// Metric is one pure computation over named base values. Compute gets
// the numeric inputs in declaration order and reports ok=false when the
// result is undefined for those inputs (zero denominator and the like).
type Metric struct {
	Name    string
	Unit    string
	Inputs  []string
	Compute func(in []float64) (float64, bool)
}

// Defaults returns the standard Venus metric set.
func Defaults() []Metric {
	return []Metric{
		{
			Name:   "round_trip_efficiency",
			Unit:   "%",
			Inputs: []string{"total_discharging_energy", "total_charging_energy"},
			Compute: func(in []float64) (float64, bool) {
				return ratioPercent(in[0], in[1])
			},
		},
		{
			Name:   "monthly_round_trip_efficiency",
			Unit:   "%",
			Inputs: []string{"monthly_discharging_energy", "monthly_charging_energy"},
			Compute: func(in []float64) (float64, bool) {
				return ratioPercent(in[0], in[1])
			},
		},
		{
			Name:   "stored_energy",
			Unit:   "kWh",
			Inputs: []string{"battery_rated_capacity", "soc"},
			Compute: func(in []float64) (float64, bool) {
				return in[0] * in[1] / 100, true
			},
		},
		{
			Name:   "ac_conversion_efficiency",
			Unit:   "%",
			Inputs: []string{"ac_power", "battery_power"},
			Compute: func(in []float64) (float64, bool) {
				ac, batt := in[0], in[1]
				// Orient the ratio by flow direction so it stays <= 100%:
				// charging converts AC into battery power, discharging the
				// other way around.
				if batt < 0 {
					return ratioPercent(-batt, -ac)
				}
				return ratioPercent(ac, batt)
			},
		},
	}
}

func ratioPercent(num, den float64) (float64, bool) {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return 0, false
	}
	return num / den * 100, true
}

// Engine evaluates metrics against snapshot values. It holds no state
// of its own; the coordinator owns the snapshot and is the single
// writer of the engine's results.
type Engine struct {
	metrics []Metric
	byInput map[string][]int
}

func NewEngine(metrics []Metric) *Engine {
	e := &Engine{
		metrics: metrics,
		byInput: make(map[string][]int),
	}
	for i, m := range metrics {
		for _, in := range m.Inputs {
			e.byInput[in] = append(e.byInput[in], i)
		}
	}
	return e
}

// Inputs returns every logical name any metric depends on. The
// scheduler uses this as its reverse-dependency index so inputs stay
// polled even when no consumer reads them directly.
func (e *Engine) Inputs() []string {
	names := make([]string, 0, len(e.byInput))
	for name := range e.byInput {
		names = append(names, name)
	}
	return names
}

// Recompute evaluates every metric affected by the changed input names
// and returns the resulting values, stamped with now. A metric whose
// inputs are missing, invalid or undefined yields an invalid value,
// never an error.
func (e *Engine) Recompute(get func(string) (battery.Value, bool), changed []string, now time.Time) []battery.Value {
	affected := make(map[int]bool)
	for _, name := range changed {
		for _, i := range e.byInput[name] {
			affected[i] = true
		}
	}

	var out []battery.Value
	for i, m := range e.metrics {
		if !affected[i] {
			continue
		}

		in := make([]float64, len(m.Inputs))
		ok := true
		for j, name := range m.Inputs {
			v, found := get(name)
			if !found || !v.Valid {
				ok = false
				break
			}
			in[j] = v.Num
		}

		val := battery.Value{Name: m.Name, Unit: m.Unit, Updated: now}
		if ok {
			if res, defined := m.Compute(in); defined {
				val.Num = res
				val.Valid = true
			}
		}
		out = append(out, val)
	}
	return out
}
