package storage

import (
	"fmt"
	"time"

	"marstek-monitor/internal/battery"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&BatteryReading{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) SaveReading(data *battery.BatteryData) error {
	reading := &BatteryReading{
		Timestamp:           data.Timestamp,
		DeviceName:          data.DeviceName,
		FirmwareVersion:     data.FirmwareVersion,
		BatteryVoltage:      data.BatteryVoltage,
		BatteryCurrent:      data.BatteryCurrent,
		BatteryPower:        data.BatteryPower,
		SOC:                 data.SOC,
		SOH:                 data.SOH,
		RatedCapacity:       data.RatedCapacity,
		ACVoltage:           data.ACVoltage,
		ACCurrent:           data.ACCurrent,
		ACPower:             data.ACPower,
		ACFrequency:         data.ACFrequency,
		InternalTemperature: data.InternalTemperature,
		TotalCharged:        data.TotalCharged,
		TotalDischarged:     data.TotalDischarged,
		DailyCharged:        data.DailyCharged,
		DailyDischarged:     data.DailyDischarged,
		StoredEnergy:        data.StoredEnergy,
		RoundTripEfficiency: data.RoundTripEfficiency,
		WorkingStatus:       data.WorkingStatus,
		WorkingStatusString: data.WorkingStatusString,
		IsOnline:            data.IsOnline,
	}

	return d.db.Create(reading).Error
}

func (d *Database) GetLatestReading() (*BatteryReading, error) {
	var reading BatteryReading
	result := d.db.Order("timestamp desc").First(&reading)
	if result.Error != nil {
		return nil, result.Error
	}
	return &reading, nil
}

func (d *Database) GetReadingsByRange(from, to time.Time) ([]BatteryReading, error) {
	var readings []BatteryReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp desc").
		Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetReadingsWithLimit(limit int) ([]BatteryReading, error) {
	var readings []BatteryReading
	result := d.db.Order("timestamp desc").Limit(limit).Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetDailyEnergy(date time.Time) (charged, discharged float64, err error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var reading BatteryReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("timestamp desc").
		First(&reading)
	if result.Error != nil {
		return 0, 0, result.Error
	}
	return reading.DailyCharged, reading.DailyDischarged, nil
}

func (d *Database) GetDailyStats(date time.Time) (*DailyStats, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var stats DailyStats
	stats.Date = startOfDay

	// Peak charge power within the day
	var reading BatteryReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("battery_power desc").
		First(&reading)
	if result.Error == nil {
		stats.MaxChargePower = reading.BatteryPower
	}

	// Latest daily energy counters
	result = d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("timestamp desc").
		First(&reading)
	if result.Error == nil {
		stats.ChargedEnergy = reading.DailyCharged
		stats.DischargedEnergy = reading.DailyDischarged
	}

	d.db.Model(&BatteryReading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Count(&stats.ReadingsCount)

	return &stats, nil
}

func (d *Database) CleanOldReadings(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return d.db.Where("timestamp < ?", cutoff).Delete(&BatteryReading{}).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
