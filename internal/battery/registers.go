package battery

// Marstek Venus Modbus register map.
//
// The v1/v2 generations (Venus C/D and Venus E) share one holding-register
// layout; the v3 firmware moved most telemetry into a compact 31xxx block
// and shrank the 32-bit power fields to 16-bit words with 10 W resolution.
// Layouts carry their own encoding so that duality stays explicit.

// same places a value at the same address on every generation.
func same(addr uint16, k Kind, words uint16) map[Variant]Layout {
	l := Layout{Addr: addr, Kind: k, Words: words}
	return map[Variant]Layout{VariantV1: l, VariantV2: l, VariantV3: l}
}

// split places a value on v1/v2 and at a different layout on v3.
func split(v12, v3 Layout) map[Variant]Layout {
	return map[Variant]Layout{VariantV1: v12, VariantV2: v12, VariantV3: v3}
}

var alarmBits = map[uint]string{
	0: "pll_abnormal_restart",
	1: "overtemperature_limit",
	2: "low_temperature_limit",
	3: "fan_abnormal_warning",
	4: "low_battery_soc_warning",
	5: "output_overcurrent_warning",
	6: "abnormal_line_sequence",
}

var faultBits = map[uint]string{
	0:  "grid_overvoltage",
	1:  "grid_undervoltage",
	2:  "grid_overfrequency",
	3:  "grid_underfrequency",
	4:  "grid_peak_voltage",
	5:  "dc_overcurrent",
	6:  "dc_overvoltage",
	8:  "battery_overvoltage",
	9:  "battery_undervoltage",
	10: "battery_overcurrent",
	12: "battery_low_soc",
	13: "battery_comm_failure",
	14: "bms_protect",
}

var table = []Definition{
	// Device identity
	{Name: "device_name", Layouts: same(30000, KindASCII, 10), Scale: 1, Tier: TierVeryLow},
	{Name: "firmware_version", Layouts: same(30015, KindUint, 1), Scale: 0.01, Tier: TierVeryLow},
	{Name: "bms_version", Layouts: same(30016, KindUint, 1), Scale: 0.01, Tier: TierVeryLow},

	// Battery telemetry
	{Name: "battery_voltage", Layouts: split(Layout{32100, KindUint, 1}, Layout{31100, KindUint, 1}),
		Scale: 0.01, Unit: "V", Tier: TierHigh},
	{Name: "battery_current", Layouts: split(Layout{32101, KindInt, 1}, Layout{31101, KindInt, 1}),
		Scale: 0.01, Unit: "A", Tier: TierHigh},
	{Name: "battery_power", Layouts: split(Layout{32102, KindInt, 2}, Layout{31102, KindInt, 1}),
		Scale: 1, Unit: "W", Tier: TierHigh, Dependency: true},
	{Name: "soc", Layouts: split(Layout{32104, KindUint, 1}, Layout{31103, KindUint, 1}),
		Scale: 1, Unit: "%", Tier: TierHigh, Dependency: true},
	{Name: "soh", Layouts: split(Layout{32105, KindUint, 1}, Layout{31104, KindUint, 1}),
		Scale: 1, Unit: "%", Tier: TierLow},
	{Name: "battery_rated_capacity", Layouts: split(Layout{32106, KindUint, 1}, Layout{31105, KindUint, 1}),
		Scale: 0.001, Unit: "kWh", Tier: TierLow, Dependency: true},
	{Name: "working_status", Layouts: split(Layout{32110, KindUint, 1}, Layout{31110, KindUint, 1}),
		Scale: 1, Tier: TierHigh},

	// AC telemetry
	{Name: "ac_voltage", Layouts: split(Layout{32200, KindUint, 1}, Layout{31200, KindUint, 1}),
		Scale: 0.1, Unit: "V", Tier: TierHigh},
	{Name: "ac_current", Layouts: split(Layout{32201, KindUint, 1}, Layout{31201, KindUint, 1}),
		Scale: 0.01, Unit: "A", Tier: TierHigh},
	{Name: "ac_power", Layouts: split(Layout{32202, KindInt, 2}, Layout{31202, KindInt, 1}),
		Scale: 1, Unit: "W", Tier: TierHigh, Dependency: true},
	{Name: "ac_frequency", Layouts: split(Layout{32204, KindUint, 1}, Layout{31203, KindUint, 1}),
		Scale: 0.01, Unit: "Hz", Tier: TierHigh},

	// Off-grid output exists only on the v1/v2 hardware
	{Name: "ac_offgrid_voltage", Layouts: map[Variant]Layout{
		VariantV1: {32300, KindUint, 1}, VariantV2: {32300, KindUint, 1}},
		Scale: 0.1, Unit: "V", Tier: TierMedium},
	{Name: "ac_offgrid_current", Layouts: map[Variant]Layout{
		VariantV1: {32301, KindUint, 1}, VariantV2: {32301, KindUint, 1}},
		Scale: 0.01, Unit: "A", Tier: TierMedium},
	{Name: "ac_offgrid_power", Layouts: map[Variant]Layout{
		VariantV1: {32302, KindInt, 2}, VariantV2: {32302, KindInt, 2}},
		Scale: 1, Unit: "W", Tier: TierMedium},

	// Energy counters
	{Name: "total_charging_energy", Layouts: split(Layout{33000, KindUint, 2}, Layout{31600, KindUint, 2}),
		Scale: 0.01, Unit: "kWh", Tier: TierLow, Dependency: true},
	{Name: "total_discharging_energy", Layouts: split(Layout{33002, KindUint, 2}, Layout{31602, KindUint, 2}),
		Scale: 0.01, Unit: "kWh", Tier: TierLow, Dependency: true},
	{Name: "daily_charging_energy", Layouts: split(Layout{33004, KindUint, 1}, Layout{31604, KindUint, 1}),
		Scale: 0.01, Unit: "kWh", Tier: TierMedium},
	{Name: "daily_discharging_energy", Layouts: split(Layout{33005, KindUint, 1}, Layout{31605, KindUint, 1}),
		Scale: 0.01, Unit: "kWh", Tier: TierMedium},
	{Name: "monthly_charging_energy", Layouts: split(Layout{33010, KindUint, 2}, Layout{31606, KindUint, 2}),
		Scale: 0.01, Unit: "kWh", Tier: TierLow, Dependency: true},
	{Name: "monthly_discharging_energy", Layouts: split(Layout{33012, KindUint, 2}, Layout{31608, KindUint, 2}),
		Scale: 0.01, Unit: "kWh", Tier: TierLow, Dependency: true},

	// Temperatures
	{Name: "internal_temperature", Layouts: split(Layout{35000, KindInt, 1}, Layout{31300, KindInt, 1}),
		Scale: 0.1, Unit: "°C", Tier: TierMedium},
	{Name: "internal_mos1_temperature", Layouts: split(Layout{35001, KindInt, 1}, Layout{31301, KindInt, 1}),
		Scale: 0.1, Unit: "°C", Tier: TierMedium},
	{Name: "internal_mos2_temperature", Layouts: split(Layout{35002, KindInt, 1}, Layout{31302, KindInt, 1}),
		Scale: 0.1, Unit: "°C", Tier: TierMedium},
	{Name: "max_cell_temperature", Layouts: split(Layout{35010, KindInt, 1}, Layout{31303, KindInt, 1}),
		Scale: 0.1, Unit: "°C", Tier: TierMedium},

	// The device reports RSSI as a positive magnitude; scale -1 restores dBm.
	// Venus C/D has no radio diagnostics register.
	{Name: "wifi_signal", Layouts: map[Variant]Layout{
		VariantV2: {35100, KindUint, 1}, VariantV3: {31400, KindUint, 1}},
		Scale: -1, Unit: "dBm", Tier: TierLow},

	// Alarm and fault words
	{Name: "alarm_status", Layouts: split(Layout{36000, KindBitfield, 2}, Layout{31500, KindBitfield, 1}),
		Scale: 1, Tier: TierMedium, Bits: alarmBits},
	{Name: "fault_status", Layouts: split(Layout{36100, KindBitfield, 2}, Layout{31501, KindBitfield, 1}),
		Scale: 1, Tier: TierMedium, Bits: faultBits},

	// Control registers
	{Name: "force_mode", Layouts: same(42010, KindUint, 1),
		Scale: 1, Tier: TierLow, Access: ReadWrite, Min: 0, Max: 2, Step: 1},
	{Name: "force_charge_power", Layouts: same(42020, KindUint, 1),
		Scale: 1, Unit: "W", Tier: TierLow, Access: ReadWrite, Min: 0, Max: 2500, Step: 1},
	{Name: "force_discharge_power", Layouts: same(42021, KindUint, 1),
		Scale: 1, Unit: "W", Tier: TierLow, Access: ReadWrite, Min: 0, Max: 2500, Step: 1},
	{Name: "rs485_control_enable", Layouts: same(42110, KindUint, 1),
		Scale: 1, Tier: TierLow, Access: ReadWrite, Min: 0, Max: 65535, Step: 1},
	{Name: "user_work_mode", Layouts: same(43000, KindUint, 1),
		Scale: 1, Tier: TierLow, Access: ReadWrite, Min: 0, Max: 2, Step: 1},
	{Name: "grid_standard", Layouts: same(44000, KindUint, 1),
		Scale: 1, Tier: TierLow, Access: ReadWrite, Min: 0, Max: 3, Step: 1},
	{Name: "backup_function_enable", Layouts: same(44002, KindUint, 1),
		Scale: 1, Tier: TierLow, Access: ReadWrite, Min: 0, Max: 1, Step: 1},
}

// Working states
const (
	StatusSleep       = 0
	StatusStandby     = 1
	StatusCharging    = 2
	StatusDischarging = 3
	StatusBackup      = 4
	StatusFault       = 5
	StatusUpgrading   = 6
)

// User work modes
const (
	ModeManual   = 0
	ModeAntiFeed = 1
	ModeTrade    = 2
)

// Force charge/discharge modes
const (
	ForceStop      = 0
	ForceCharge    = 1
	ForceDischarge = 2
)

func WorkingStatusString(status uint16) string {
	switch status {
	case StatusSleep:
		return "Sleep"
	case StatusStandby:
		return "Standby"
	case StatusCharging:
		return "Charging"
	case StatusDischarging:
		return "Discharging"
	case StatusBackup:
		return "Backup"
	case StatusFault:
		return "Fault"
	case StatusUpgrading:
		return "Upgrading"
	default:
		return "Unknown"
	}
}

func WorkModeString(mode uint16) string {
	switch mode {
	case ModeManual:
		return "Manual"
	case ModeAntiFeed:
		return "Anti-Feed"
	case ModeTrade:
		return "Trade"
	default:
		return "Unknown"
	}
}
