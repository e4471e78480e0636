package derived

import (
	"math"
	"testing"
	"time"

	"marstek-monitor/internal/battery"
)

func getter(values map[string]battery.Value) func(string) (battery.Value, bool) {
	return func(name string) (battery.Value, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func num(name string, n float64) battery.Value {
	return battery.Value{Name: name, Num: n, Valid: true, Updated: time.Now()}
}

func findValue(t *testing.T, out []battery.Value, name string) battery.Value {
	t.Helper()
	for _, v := range out {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("no result for %q", name)
	return battery.Value{}
}

func TestRoundTripEfficiency(t *testing.T) {
	e := NewEngine(Defaults())
	values := map[string]battery.Value{
		"total_charging_energy":    num("total_charging_energy", 1000),
		"total_discharging_energy": num("total_discharging_energy", 900),
	}

	out := e.Recompute(getter(values), []string{"total_charging_energy"}, time.Now())
	v := findValue(t, out, "round_trip_efficiency")
	if !v.Valid {
		t.Fatal("expected valid result")
	}
	if math.Abs(v.Num-90) > 1e-9 {
		t.Fatalf("expected 90%%, got %v", v.Num)
	}
}

func TestRoundTripEfficiencyZeroChargeIsInvalid(t *testing.T) {
	e := NewEngine(Defaults())
	values := map[string]battery.Value{
		"total_charging_energy":    num("total_charging_energy", 0),
		"total_discharging_energy": num("total_discharging_energy", 900),
	}

	out := e.Recompute(getter(values), []string{"total_charging_energy"}, time.Now())
	if v := findValue(t, out, "round_trip_efficiency"); v.Valid {
		t.Fatalf("expected invalid result for zero charged energy, got %v", v.Num)
	}
}

func TestRoundTripEfficiencyInvalidInput(t *testing.T) {
	e := NewEngine(Defaults())
	stale := battery.Value{Name: "total_discharging_energy", Num: 900, Valid: false}
	values := map[string]battery.Value{
		"total_charging_energy":    num("total_charging_energy", 1000),
		"total_discharging_energy": stale,
	}

	out := e.Recompute(getter(values), []string{"total_charging_energy"}, time.Now())
	if v := findValue(t, out, "round_trip_efficiency"); v.Valid {
		t.Fatal("expected invalid result when an input is invalid")
	}
}

func TestStoredEnergy(t *testing.T) {
	e := NewEngine(Defaults())
	values := map[string]battery.Value{
		"battery_rated_capacity": num("battery_rated_capacity", 5.12),
		"soc":                    num("soc", 50),
	}

	out := e.Recompute(getter(values), []string{"soc"}, time.Now())
	v := findValue(t, out, "stored_energy")
	if !v.Valid || math.Abs(v.Num-2.56) > 1e-9 {
		t.Fatalf("expected 2.56 kWh, got %v (valid=%v)", v.Num, v.Valid)
	}
}

func TestRecomputeOnlyAffectedMetrics(t *testing.T) {
	e := NewEngine(Defaults())
	values := map[string]battery.Value{
		"battery_rated_capacity":   num("battery_rated_capacity", 5.12),
		"soc":                      num("soc", 50),
		"total_charging_energy":    num("total_charging_energy", 1000),
		"total_discharging_energy": num("total_discharging_energy", 900),
	}

	out := e.Recompute(getter(values), []string{"soc"}, time.Now())
	for _, v := range out {
		if v.Name == "round_trip_efficiency" {
			t.Fatal("round_trip_efficiency should not recompute on soc change")
		}
	}
	findValue(t, out, "stored_energy")
}

func TestACConversionEfficiencyOrientation(t *testing.T) {
	e := NewEngine(Defaults())

	// Discharging: battery feeds AC, AC output / battery input.
	values := map[string]battery.Value{
		"ac_power":      num("ac_power", 900),
		"battery_power": num("battery_power", 1000),
	}
	out := e.Recompute(getter(values), []string{"battery_power"}, time.Now())
	v := findValue(t, out, "ac_conversion_efficiency")
	if !v.Valid || math.Abs(v.Num-90) > 1e-9 {
		t.Fatalf("discharge: expected 90%%, got %v", v.Num)
	}

	// Charging: AC feeds battery, battery input / AC draw.
	values["ac_power"] = num("ac_power", -1100)
	values["battery_power"] = num("battery_power", -1000)
	out = e.Recompute(getter(values), []string{"battery_power"}, time.Now())
	v = findValue(t, out, "ac_conversion_efficiency")
	if !v.Valid || math.Abs(v.Num-1000.0/1100*100) > 1e-9 {
		t.Fatalf("charge: expected ~90.9%%, got %v", v.Num)
	}
}

func TestInputsCoverAllMetrics(t *testing.T) {
	e := NewEngine(Defaults())
	inputs := make(map[string]bool)
	for _, name := range e.Inputs() {
		inputs[name] = true
	}
	for _, want := range []string{"soc", "battery_rated_capacity",
		"total_charging_energy", "total_discharging_energy",
		"monthly_charging_energy", "monthly_discharging_energy",
		"ac_power", "battery_power"} {
		if !inputs[want] {
			t.Fatalf("Inputs() missing %q", want)
		}
	}
}
