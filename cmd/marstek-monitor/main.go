package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"marstek-monitor/config"
	"marstek-monitor/internal/api"
	"marstek-monitor/internal/battery"
	"marstek-monitor/internal/coordinator"
	"marstek-monitor/internal/modbus"
	"marstek-monitor/internal/mqtt"
	"marstek-monitor/internal/poll"
	"marstek-monitor/internal/storage"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marstek-monitor",
		Short: "Marstek Venus battery monitor",
		Long:  "A tool to monitor and control a Marstek Venus battery via Modbus TCP",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(writeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCoordinator(cfg *config.Config) (*coordinator.Coordinator, *modbus.Client, error) {
	variant, err := battery.ParseVariant(cfg.Battery.Variant)
	if err != nil {
		return nil, nil, err
	}

	client := modbus.NewClient(
		cfg.Battery.Host,
		cfg.Battery.Port,
		cfg.Battery.UnitID,
		cfg.Battery.Timeout,
	)
	if err := client.Connect(); err != nil {
		return nil, nil, err
	}

	coord, err := coordinator.New(client, coordinator.Config{
		Variant: variant,
		Intervals: poll.Intervals{
			battery.TierHigh:    cfg.Polling.High,
			battery.TierMedium:  cfg.Polling.Medium,
			battery.TierLow:     cfg.Polling.Low,
			battery.TierVeryLow: cfg.Polling.VeryLow,
		},
		CoalesceGap:      cfg.Polling.CoalesceGap,
		ActiveValues:     cfg.Polling.EnabledValues,
		FailureThreshold: cfg.Polling.FailureThreshold,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return coord, client, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring service",
		Long:  "Start the poll coordinator, API server, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			coord, client, err := newCoordinator(cfg)
			if err != nil {
				return fmt.Errorf("failed to start coordinator: %w", err)
			}
			defer client.Close()

			// Create database
			var db *storage.Database
			if cfg.Database.Enabled {
				db, err = storage.NewDatabase(cfg.Database.Path)
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer db.Close()
				log.Printf("Database opened at %s", cfg.Database.Path)
			}

			// Create MQTT publisher
			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
				publisher.PublishHomeAssistantDiscovery()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := coord.Run(ctx); err != nil {
					log.Printf("Coordinator error: %v", err)
				}
			}()

			// Persist and publish snapshots on the database interval
			go func() {
				interval := cfg.Database.Interval
				if interval <= 0 {
					interval = time.Minute
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						data := coord.Data()
						if db != nil {
							if err := db.SaveReading(data); err != nil {
								log.Printf("Error saving reading: %v", err)
							}
						}
						if publisher != nil {
							if err := publisher.Publish(data); err != nil {
								log.Printf("Error publishing to MQTT: %v", err)
							}
						}
					}
				}
			}()

			// Retention sweep
			if db != nil && cfg.Database.Retention > 0 {
				go func() {
					ticker := time.NewTicker(time.Hour)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							if err := db.CleanOldReadings(cfg.Database.Retention); err != nil {
								log.Printf("Error cleaning old readings: %v", err)
							}
						}
					}
				}()
			}

			if cfg.API.Enabled {
				server := api.NewServer(api.ServerConfig{
					Port:        cfg.API.Port,
					Coordinator: coord,
					Database:    db,
					Variant:     coord.Variant(),
				})

				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("Marstek Monitor started. Press Ctrl+C to stop.")

			<-sigChan
			log.Println("Shutting down...")
			cancel()
			if publisher != nil {
				publisher.Close()
			}

			return nil
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read data once from the battery",
		Long:  "Connect to the battery, run one poll cycle and print the decoded values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			coord, client, err := newCoordinator(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			coord.RunCycle(time.Now())

			output, _ := json.MarshalIndent(coord.Values(), "", "  ")
			fmt.Println(string(output))

			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connection to the battery",
		Long:  "Test the Modbus TCP connection to the battery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Printf("Testing connection to %s:%d...\n", cfg.Battery.Host, cfg.Battery.Port)

			coord, client, err := newCoordinator(cfg)
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}
			defer client.Close()

			coord.RunCycle(time.Now())
			data := coord.Data()

			fmt.Println("Connection SUCCESS!")
			fmt.Printf("\nBattery Info:\n")
			fmt.Printf("  Device Name:   %s\n", data.DeviceName)
			fmt.Printf("  Firmware:      %.2f\n", data.FirmwareVersion)
			fmt.Printf("  Status:        %s\n", data.WorkingStatusString)
			fmt.Printf("\nCurrent Values:\n")
			fmt.Printf("  Battery Power: %.0f W\n", data.BatteryPower)
			fmt.Printf("  SOC:           %.0f %%\n", data.SOC)
			fmt.Printf("  Stored Energy: %.2f kWh\n", data.StoredEnergy)
			fmt.Printf("  Temperature:   %.1f °C\n", data.InternalTemperature)

			return nil
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <name> <value>",
		Short: "Write a control register",
		Long:  "Validate and write a value to a writable register, e.g. force_charge_power 1500",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}

			coord, client, err := newCoordinator(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := coord.SubmitWrite(args[0], value); err != nil {
				return err
			}

			fmt.Printf("Wrote %s = %v\n", args[0], value)
			return nil
		},
	}
}
