package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/kubscraper/internal/config"
	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/jgoulah/kubscraper/internal/stats"
)

// Publisher pushes committed snapshots out to MQTT and/or the Home
// Assistant HTTP API so the monthly totals show up as sensor states.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	haConfig    config.HAConfig
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	// Validate HA config if enabled
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
	}

	var client mqtt.Client
	var topicPrefix string

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		topicPrefix = mqttCfg.GetTopicPrefix()

		// Configure MQTT client options
		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID("kubscraper")
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		// Create and connect client
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
	}

	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		haConfig:    haCfg,
	}, nil
}

// serviceState is the per-service payload published after each refresh
type serviceState struct {
	Service   string   `json:"service"`
	Usage     *float64 `json:"usage"`
	Cost      *float64 `json:"cost"`
	Unit      string   `json:"unit"`
	UpdatedAt string   `json:"updated_at"`
}

// PublishSnapshot publishes each service's monthly totals. MQTT states are
// retained so subscribers see the last value immediately.
func (p *Publisher) PublishSnapshot(snap *kub.Snapshot) error {
	now := time.Now().Format(time.RFC3339)

	for _, utility := range snap.ServiceList {
		total := snap.MonthlyTotal[utility]
		state := serviceState{
			Service:   utility.String(),
			Usage:     total.Usage,
			Cost:      total.Cost,
			Unit:      stats.ConsumptionUnit(utility),
			UpdatedAt: now,
		}

		body, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encoding %s state: %w", utility, err)
		}

		if p.client != nil {
			topic := fmt.Sprintf("%s/%s/state", p.topicPrefix, utility)
			if token := p.client.Publish(topic, 0, true, body); token.Wait() && token.Error() != nil {
				return fmt.Errorf("publishing to %s: %w", topic, token.Error())
			}
		}

		if p.haConfig.Enabled {
			if err := p.publishHAState(utility, state); err != nil {
				return err
			}
		}
	}

	return nil
}

// haPayload matches the Home Assistant states API call data
type haPayload struct {
	State      string            `json:"state"`
	Attributes map[string]string `json:"attributes"`
}

// publishHAState updates sensor.kub_<service>_usage via the HA HTTP API
func (p *Publisher) publishHAState(utility kub.UtilityType, state serviceState) error {
	if state.Usage == nil {
		return nil
	}

	entityID := fmt.Sprintf("sensor.kub_%s_usage", utility)
	apiURL := fmt.Sprintf("%s/api/states/%s", p.haConfig.URL, entityID)

	payload := haPayload{
		State: fmt.Sprintf("%.2f", *state.Usage),
		Attributes: map[string]string{
			"unit_of_measurement": state.Unit,
			"friendly_name":       fmt.Sprintf("KUB %s Usage", utility),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest("POST", apiURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
