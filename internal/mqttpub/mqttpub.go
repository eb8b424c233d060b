// Package mqttpub optionally republishes alarm and telemetry events to an
// MQTT broker, for shore-side monitoring integrations. Disabled by default;
// no component depends on it being reachable.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher wraps a paho MQTT client scoped to one topic.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// New connects to broker with the given client ID. Connection failure here
// is not fatal to the process: mqttpub is an optional sink.
func New(broker, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID).SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttpub: connect to %s: %w", broker, token.Error())
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Event is the republished payload shape: a named event plus the current
// boat-state snapshot at the time it fired.
type Event struct {
	Kind      string                 `json:"kind"`
	Timestamp string                 `json:"ts"`
	Fields    map[string]interface{} `json:"fields"`
}

// Publish republishes one event, best-effort: a publish failure is logged
// by the caller and does not block the autopilot tick.
func (p *Publisher) Publish(kind string, fields map[string]interface{}) error {
	event := Event{Kind: kind, Timestamp: time.Now().UTC().Format(time.RFC3339), Fields: fields}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("mqttpub: marshal event: %w", err)
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
