package coordinator

import (
	"errors"
	"testing"
	"time"

	"marstek-monitor/internal/battery"
	"marstek-monitor/internal/poll"
)

// fakeTransport serves reads from a sparse register memory and logs
// writes without applying them, which mirrors the device's habit of
// reporting the old value for a while after an accepted write.
type fakeTransport struct {
	mem          map[uint16]uint16
	failRead     func(start uint16) error
	writeErr     error
	writes       [][]uint16
	writeAt      []uint16
	reconnectErr error
	onReconnect  func()
	reconnects   int
}

func (f *fakeTransport) ReadRegisters(start, count uint16) ([]uint16, error) {
	if f.failRead != nil {
		if err := f.failRead(start); err != nil {
			return nil, err
		}
	}
	words := make([]uint16, count)
	for i := range words {
		words[i] = f.mem[start+uint16(i)]
	}
	return words, nil
}

func (f *fakeTransport) WriteRegisters(start uint16, words []uint16) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writeAt = append(f.writeAt, start)
	f.writes = append(f.writes, words)
	return nil
}

func (f *fakeTransport) Reconnect() error {
	f.reconnects++
	if f.reconnectErr != nil {
		return f.reconnectErr
	}
	if f.onReconnect != nil {
		f.onReconnect()
	}
	return nil
}

func (f *fakeTransport) set32(addr uint16, v int32) {
	f.mem[addr] = uint16(uint32(v) >> 16)
	f.mem[addr+1] = uint16(uint32(v))
}

func testIntervals() poll.Intervals {
	return poll.Intervals{
		battery.TierHigh:    5 * time.Second,
		battery.TierMedium:  30 * time.Second,
		battery.TierLow:     60 * time.Second,
		battery.TierVeryLow: 600 * time.Second,
	}
}

func newTestCoordinator(t *testing.T, ft *fakeTransport) *Coordinator {
	t.Helper()
	c, err := New(ft, Config{
		Variant:     battery.VariantV1,
		Intervals:   testIntervals(),
		CoalesceGap: 4,
	})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	return c
}

func deviceMemory() *fakeTransport {
	ft := &fakeTransport{mem: map[uint16]uint16{
		32100: 5245,   // battery_voltage 52.45 V
		32101: 0xFF6A, // battery_current -1.50 A
		32104: 55,     // soc 55 %
		32106: 5120,   // rated capacity 5.12 kWh
		32110: 3,      // working_status discharging
		32200: 2301,   // ac_voltage 230.1 V
		32204: 5002,   // ac_frequency 50.02 Hz
		33005: 120,    // daily_discharging_energy 1.2 kWh
		35000: 312,    // internal_temperature 31.2 C
		36101: 0x0008, // fault bit 3: grid_underfrequency
		42020: 600,    // force_charge_power 600 W
	}}
	ft.set32(32102, -1500) // battery_power -1500 W
	ft.set32(32202, -1630) // ac_power -1630 W
	ft.set32(33000, 100000)
	ft.set32(33002, 90000)
	return ft
}

func TestCyclePublishesDecodedValues(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	now := time.Now()
	c.RunCycle(now)

	cases := []struct {
		name string
		want float64
	}{
		{"battery_voltage", 52.45},
		{"battery_current", -1.50},
		{"battery_power", -1500},
		{"soc", 55},
		{"ac_voltage", 230.1},
		{"total_charging_energy", 1000},
		{"total_discharging_energy", 900},
		{"internal_temperature", 31.2},
	}
	for _, tc := range cases {
		v, ok := c.Get(tc.name)
		if !ok || !v.Valid {
			t.Fatalf("%s missing or invalid", tc.name)
		}
		if diff := v.Num - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s = %v, want %v", tc.name, v.Num, tc.want)
		}
		if !v.Updated.Equal(now) {
			t.Fatalf("%s timestamp not stamped with cycle time", tc.name)
		}
	}

	v, _ := c.Get("fault_status")
	if len(v.Flags) != 1 || !v.Flags["grid_underfrequency"] {
		t.Fatalf("fault_status = %v, want exactly grid_underfrequency", v.Flags)
	}
}

func TestCycleComputesDerivedMetrics(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)
	c.RunCycle(time.Now())

	rte, ok := c.Get("round_trip_efficiency")
	if !ok || !rte.Valid {
		t.Fatal("round_trip_efficiency missing or invalid")
	}
	if diff := rte.Num - 90; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("round_trip_efficiency = %v, want 90", rte.Num)
	}

	stored, _ := c.Get("stored_energy")
	if !stored.Valid || stored.Num != 5.12*0.55 {
		t.Fatalf("stored_energy = %v, want %v", stored.Num, 5.12*0.55)
	}
}

func TestDerivedZeroChargeInvalid(t *testing.T) {
	ft := deviceMemory()
	ft.set32(33000, 0)
	c := newTestCoordinator(t, ft)
	c.RunCycle(time.Now())

	rte, ok := c.Get("round_trip_efficiency")
	if !ok {
		t.Fatal("round_trip_efficiency not published")
	}
	if rte.Valid {
		t.Fatalf("expected invalid efficiency for zero charged energy, got %v", rte.Num)
	}
}

func TestGroupFailureLeavesEntriesStale(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	start := time.Now()
	c.RunCycle(start)

	// The battery block fails on the next cycle; the AC block does not.
	ft.failRead = func(addr uint16) error {
		if addr == 32100 {
			return errors.New("timeout")
		}
		return nil
	}
	ft.set32(32202, -1700)

	next := start.Add(5 * time.Second)
	c.RunCycle(next)

	soc, _ := c.Get("soc")
	if !soc.Valid || soc.Num != 55 {
		t.Fatalf("soc should keep its prior value, got %v (valid=%v)", soc.Num, soc.Valid)
	}
	if !soc.Updated.Equal(start) {
		t.Fatal("stale entry must keep its old timestamp")
	}

	ac, _ := c.Get("ac_power")
	if !ac.Updated.Equal(next) || ac.Num != -1700 {
		t.Fatalf("unrelated group should refresh, got %v at %v", ac.Num, ac.Updated)
	}
}

func TestFailedTierRetriesNextTick(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	start := time.Now()
	c.RunCycle(start)

	ft.failRead = func(addr uint16) error {
		if addr == 32100 {
			return errors.New("timeout")
		}
		return nil
	}
	c.RunCycle(start.Add(5 * time.Second))

	// One second later the failed tier's group is retried even though
	// the 5s interval has not elapsed since the attempt.
	ft.failRead = nil
	ft.mem[32104] = 56
	c.RunCycle(start.Add(6 * time.Second))

	soc, _ := c.Get("soc")
	if soc.Num != 56 {
		t.Fatalf("failed tier should retry on the next tick, soc = %v", soc.Num)
	}
}

func TestReconnectHealsBrokenSession(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	// Every read fails until the transport reconnects, as after a dead
	// TCP session to the gateway.
	ft.failRead = func(uint16) error { return errors.New("broken pipe") }
	ft.onReconnect = func() { ft.failRead = nil }

	c.RunCycle(time.Now())

	if ft.reconnects != 1 {
		t.Fatalf("reconnects = %d, want 1", ft.reconnects)
	}
	soc, ok := c.Get("soc")
	if !ok || soc.Num != 55 {
		t.Fatalf("cycle should succeed after reconnect, soc = %v", soc.Num)
	}
	if len(c.Health()) != 0 {
		t.Fatalf("healed read must not count as a failure: %v", c.Health())
	}
}

func TestReconnectFailureKeepsGroupFailed(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	ft.failRead = func(addr uint16) error {
		if addr == 32100 {
			return errors.New("timeout")
		}
		return nil
	}
	ft.reconnectErr = errors.New("connection refused")

	c.RunCycle(time.Now())

	if ft.reconnects == 0 {
		t.Fatal("read failure should attempt a reconnect")
	}
	if len(c.Health()) == 0 {
		t.Fatal("failed reconnect must leave the group failed")
	}
}

func TestWriteRetriesAfterReconnect(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	ft.writeErr = errors.New("broken pipe")
	ft.onReconnect = func() { ft.writeErr = nil }

	if err := c.SubmitWrite("force_charge_power", 1500); err != nil {
		t.Fatalf("write should succeed after reconnect, got %v", err)
	}
	if ft.reconnects != 1 {
		t.Fatalf("reconnects = %d, want 1", ft.reconnects)
	}
	if len(ft.writes) != 1 || ft.writes[0][0] != 1500 {
		t.Fatalf("retried write not issued: %v", ft.writes)
	}
}

func TestVariantExposed(t *testing.T) {
	c := newTestCoordinator(t, deviceMemory())
	if c.Variant() != battery.VariantV1 {
		t.Fatalf("Variant() = %q, want %q", c.Variant(), battery.VariantV1)
	}
}

func TestDegradedAfterConsecutiveFailures(t *testing.T) {
	ft := deviceMemory()
	var degradedGroup string
	c, err := New(ft, Config{
		Variant:          battery.VariantV1,
		Intervals:        testIntervals(),
		CoalesceGap:      4,
		FailureThreshold: 3,
		OnDegraded: func(group string, failures int) {
			degradedGroup = group
		},
	})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}

	ft.failRead = func(addr uint16) error {
		if addr == 32100 {
			return errors.New("timeout")
		}
		return nil
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		c.RunCycle(start.Add(time.Duration(i) * 5 * time.Second))
	}

	if degradedGroup == "" {
		t.Fatal("expected degraded callback after 3 consecutive failures")
	}
	if !c.Degraded() {
		t.Fatal("coordinator should report degraded")
	}

	health := c.Health()
	g, ok := health[degradedGroup]
	if !ok || !g.Degraded || g.Failures != 3 {
		t.Fatalf("health for %s = %+v", degradedGroup, g)
	}
	for key, h := range health {
		if key != degradedGroup && h.Degraded {
			t.Fatalf("unrelated group %s degraded", key)
		}
	}

	// One success clears the diagnostic.
	ft.failRead = nil
	c.RunCycle(start.Add(20 * time.Second))
	if c.Degraded() {
		t.Fatal("recovery should clear the degraded state")
	}
}

func TestWriteOutOfRangeNeverReachesTransport(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	err := c.SubmitWrite("force_charge_power", 3000)
	if !errors.Is(err, battery.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if len(ft.writes) != 0 {
		t.Fatal("validation failure must not reach the transport")
	}
}

func TestWriteUnknownRegister(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	if err := c.SubmitWrite("flux_capacitor", 1); err == nil {
		t.Fatal("expected error for unknown register")
	}
	if len(ft.writes) != 0 {
		t.Fatal("unknown register must not reach the transport")
	}
}

func TestWriteTransportFailureLeavesSnapshot(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)
	c.RunCycle(time.Now())

	ft.writeErr = errors.New("timeout")
	if err := c.SubmitWrite("force_charge_power", 1500); err == nil {
		t.Fatal("expected transport error")
	}

	v, _ := c.Get("force_charge_power")
	if v.Num != 600 {
		t.Fatalf("failed write must leave the snapshot untouched, got %v", v.Num)
	}
}

func TestWriteOptimisticThenReadBackWins(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	start := time.Now()
	c.RunCycle(start)

	if err := c.SubmitWrite("force_charge_power", 1500); err != nil {
		t.Fatalf("SubmitWrite err=%v", err)
	}
	if ft.writeAt[0] != 42020 || ft.writes[0][0] != 1500 {
		t.Fatalf("wrote %v at %d", ft.writes[0], ft.writeAt[0])
	}

	// Optimistic value is visible immediately.
	v, _ := c.Get("force_charge_power")
	if v.Num != 1500 {
		t.Fatalf("expected optimistic 1500, got %v", v.Num)
	}

	// The device still reports the old value; the next read of that
	// register is authoritative and overwrites the optimistic state.
	c.RunCycle(start.Add(60 * time.Second))
	v, _ = c.Get("force_charge_power")
	if v.Num != 600 {
		t.Fatalf("read-back should win over optimistic write, got %v", v.Num)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ft := deviceMemory()
	c := newTestCoordinator(t, ft)

	ch := c.Subscribe("soc")
	c.RunCycle(time.Now())

	select {
	case v := <-ch:
		if v.Num != 55 {
			t.Fatalf("subscriber got %v, want 55", v.Num)
		}
	default:
		t.Fatal("subscriber did not receive the update")
	}
}

func TestInactiveConsumersStillFeedDependencies(t *testing.T) {
	ft := deviceMemory()
	c, err := New(ft, Config{
		Variant:      battery.VariantV1,
		Intervals:    testIntervals(),
		CoalesceGap:  4,
		ActiveValues: []string{"internal_temperature"},
	})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	c.RunCycle(time.Now())

	// soc feeds stored_energy, so it is polled without a consumer.
	if _, ok := c.Get("soc"); !ok {
		t.Fatal("dependency register should be polled")
	}
	if se, ok := c.Get("stored_energy"); !ok || !se.Valid {
		t.Fatal("derived metric should compute from dependency polls")
	}
	// ac_frequency has no consumer and feeds nothing.
	if _, ok := c.Get("ac_frequency"); ok {
		t.Fatal("inactive non-dependency register should not be polled")
	}
}
