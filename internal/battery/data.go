package battery

import "time"

// BatteryData is a flattened view of the state snapshot for consumers
// that want one struct per reading (MQTT, history rows, JSON output)
// instead of the name-keyed value map.
type BatteryData struct {
	Timestamp time.Time `json:"timestamp"`

	// Device Info
	DeviceName      string  `json:"device_name"`
	FirmwareVersion float64 `json:"firmware_version"`

	// Battery
	BatteryVoltage float64 `json:"battery_voltage_v"`
	BatteryCurrent float64 `json:"battery_current_a"`
	BatteryPower   float64 `json:"battery_power_w"`
	SOC            float64 `json:"soc_percent"`
	SOH            float64 `json:"soh_percent"`
	RatedCapacity  float64 `json:"rated_capacity_kwh"`

	// AC
	ACVoltage   float64 `json:"ac_voltage_v"`
	ACCurrent   float64 `json:"ac_current_a"`
	ACPower     float64 `json:"ac_power_w"`
	ACFrequency float64 `json:"ac_frequency_hz"`

	// Temperature
	InternalTemperature float64 `json:"internal_temperature_c"`

	// Energy
	TotalCharged    float64 `json:"total_charged_kwh"`
	TotalDischarged float64 `json:"total_discharged_kwh"`
	DailyCharged    float64 `json:"daily_charged_kwh"`
	DailyDischarged float64 `json:"daily_discharged_kwh"`

	// Derived
	StoredEnergy        float64 `json:"stored_energy_kwh"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency_percent"`

	// Status
	WorkingStatus       uint16   `json:"working_status"`
	WorkingStatusString string   `json:"working_status_string"`
	ActiveAlarms        []string `json:"active_alarms,omitempty"`
	ActiveFaults        []string `json:"active_faults,omitempty"`
	IsOnline            bool     `json:"is_online"`
}

// DataFromValues flattens a snapshot value map. Values that are missing
// or invalid leave their field at zero; IsOnline reports whether the
// core battery telemetry is fresh enough to trust.
func DataFromValues(values map[string]Value, now time.Time, maxAge time.Duration) *BatteryData {
	d := &BatteryData{Timestamp: now}

	num := func(name string) float64 {
		if v, ok := values[name]; ok && v.Valid {
			return v.Num
		}
		return 0
	}

	d.DeviceName = values["device_name"].Text
	d.FirmwareVersion = num("firmware_version")
	d.BatteryVoltage = num("battery_voltage")
	d.BatteryCurrent = num("battery_current")
	d.BatteryPower = num("battery_power")
	d.SOC = num("soc")
	d.SOH = num("soh")
	d.RatedCapacity = num("battery_rated_capacity")
	d.ACVoltage = num("ac_voltage")
	d.ACCurrent = num("ac_current")
	d.ACPower = num("ac_power")
	d.ACFrequency = num("ac_frequency")
	d.InternalTemperature = num("internal_temperature")
	d.TotalCharged = num("total_charging_energy")
	d.TotalDischarged = num("total_discharging_energy")
	d.DailyCharged = num("daily_charging_energy")
	d.DailyDischarged = num("daily_discharging_energy")
	d.StoredEnergy = num("stored_energy")
	d.RoundTripEfficiency = num("round_trip_efficiency")

	d.WorkingStatus = uint16(num("working_status"))
	d.WorkingStatusString = WorkingStatusString(d.WorkingStatus)
	d.ActiveAlarms = flagNames(values["alarm_status"])
	d.ActiveFaults = flagNames(values["fault_status"])

	if v, ok := values["battery_power"]; ok && v.Valid {
		d.IsOnline = now.Sub(v.Updated) <= maxAge
	}
	return d
}

func flagNames(v Value) []string {
	if !v.Valid || len(v.Flags) == 0 {
		return nil
	}
	names := make([]string, 0, len(v.Flags))
	for name, set := range v.Flags {
		if set {
			names = append(names, name)
		}
	}
	return names
}
