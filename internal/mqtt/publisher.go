package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"marstek-monitor/internal/battery"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

func (p *Publisher) Publish(data *battery.BatteryData) error {
	if !p.enabled {
		return nil
	}

	// Publish individual values
	topics := map[string]interface{}{
		"battery_power":           data.BatteryPower,
		"battery_voltage":         data.BatteryVoltage,
		"battery_current":         data.BatteryCurrent,
		"soc":                     data.SOC,
		"soh":                     data.SOH,
		"stored_energy":           data.StoredEnergy,
		"ac_power":                data.ACPower,
		"ac_voltage":              data.ACVoltage,
		"ac_frequency":            data.ACFrequency,
		"temperature":             data.InternalTemperature,
		"energy_charged_total":    data.TotalCharged,
		"energy_discharged_total": data.TotalDischarged,
		"energy_charged_daily":    data.DailyCharged,
		"energy_discharged_daily": data.DailyDischarged,
		"round_trip_efficiency":   data.RoundTripEfficiency,
		"working_status":          data.WorkingStatusString,
		"is_online":               data.IsOnline,
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/venus/%s", p.topicPrefix, name)
		payload := fmt.Sprintf("%v", value)
		token := p.client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v", topic, token.Error())
		}
	}

	// Publish full status as JSON
	statusJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/venus/status", p.topicPrefix)
	token := p.client.Publish(statusTopic, 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish status: %w", token.Error())
	}

	return nil
}

func (p *Publisher) PublishHomeAssistantDiscovery() error {
	if !p.enabled {
		return nil
	}

	sensors := []struct {
		Name        string
		ID          string
		Unit        string
		DeviceClass string
	}{
		{"Battery Power", "battery_power", "W", "power"},
		{"Battery Voltage", "battery_voltage", "V", "voltage"},
		{"Battery Current", "battery_current", "A", "current"},
		{"State of Charge", "soc", "%", "battery"},
		{"Stored Energy", "stored_energy", "kWh", "energy_storage"},
		{"AC Power", "ac_power", "W", "power"},
		{"AC Voltage", "ac_voltage", "V", "voltage"},
		{"AC Frequency", "ac_frequency", "Hz", "frequency"},
		{"Temperature", "temperature", "°C", "temperature"},
		{"Total Charged", "energy_charged_total", "kWh", "energy"},
		{"Total Discharged", "energy_discharged_total", "kWh", "energy"},
		{"Round-Trip Efficiency", "round_trip_efficiency", "%", ""},
	}

	for _, sensor := range sensors {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/marstek/%s/config", sensor.ID)

		config := map[string]interface{}{
			"name":                fmt.Sprintf("Marstek %s", sensor.Name),
			"unique_id":           fmt.Sprintf("marstek_%s", sensor.ID),
			"state_topic":         fmt.Sprintf("%s/venus/%s", p.topicPrefix, sensor.ID),
			"unit_of_measurement": sensor.Unit,
			"device": map[string]interface{}{
				"identifiers":  []string{"marstek_venus"},
				"name":         "Marstek Venus",
				"manufacturer": "Marstek",
				"model":        "Venus",
			},
		}

		if sensor.DeviceClass != "" {
			config["device_class"] = sensor.DeviceClass
		}

		payload, _ := json.Marshal(config)
		token := p.client.Publish(discoveryTopic, 0, true, payload)
		token.Wait()
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
