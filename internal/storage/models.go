package storage

import (
	"time"

	"gorm.io/gorm"
)

type BatteryReading struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`

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
	WorkingStatus       uint16 `json:"working_status"`
	WorkingStatusString string `json:"working_status_string"`
	IsOnline            bool   `json:"is_online"`
}

type DailyStats struct {
	Date             time.Time `json:"date"`
	MaxChargePower   float64   `json:"max_charge_power_w"`
	ChargedEnergy    float64   `json:"charged_energy_kwh"`
	DischargedEnergy float64   `json:"discharged_energy_kwh"`
	ReadingsCount    int64     `json:"readings_count"`
}
