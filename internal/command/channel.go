// Package command implements the external operator-command and telemetry
// channel: two Redis hashes, "helm" (commands, read and partially reset by
// the autopilot) and "current_data" (a telemetry mirror of boat state).
package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// CommandStoreDisconnected reports that the external key-value store could
// not be reached. The caller freezes commands at their last snapshot and
// keeps running; it does not treat this as fatal mid-run.
type CommandStoreDisconnected struct {
	Err error
}

func (e CommandStoreDisconnected) Error() string {
	return fmt.Sprintf("command store disconnected: %v", e.Err)
}
func (e CommandStoreDisconnected) Unwrap() error { return e.Err }

const (
	helmHash        = "helm"
	currentDataHash = "current_data"
)

// oneShotFields are commands that the autopilot resets to "0" once read, so
// a single button press in the operator UI produces exactly one effect.
var oneShotFields = []string{"auto_mode", "save_config", "delete_config"}

// Source is what the autopilot loop needs from the command channel. *Channel
// is the production implementation; tests substitute a fake.
type Source interface {
	ReadCommands(ctx context.Context) (Commands, error)
}

// Channel wraps a Redis client scoped to the helm/current_data hash pair.
type Channel struct {
	client *redis.Client
}

var _ Source = (*Channel)(nil)

// New connects to addr. The connection is verified with a PING; a failure
// here is a Startup fault, since the command channel is mandatory at boot.
func New(ctx context.Context, addr, password string, db int) (*Channel, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("command: connect to %s: %w", addr, err)
	}
	return &Channel{client: client}, nil
}

func (c *Channel) Close() error { return c.client.Close() }

// Commands is the snapshot of operator intent read from the "helm" hash
// each autopilot tick.
type Commands struct {
	AutoMode     int     // 0 = no change, 1 = standby, 2 = auto, 3 = manual
	HTS          float64 // heading-to-steer override, deci-degrees (0 = none)
	Gain         int
	TSF          int
	BaseDuty     int
	Drive        float64 // manual mode: -100..100
	SaveConfig   bool
	DeleteConfig bool
}

// ReadCommands reads the current "helm" hash and resets its one-shot fields
// to 0, so the next read sees them cleared unless the operator writes again.
// On a store-read failure it returns CommandStoreDisconnected; the caller
// should keep using the last successful snapshot.
func (c *Channel) ReadCommands(ctx context.Context) (Commands, error) {
	raw, err := c.client.HGetAll(ctx, helmHash).Result()
	if err != nil {
		return Commands{}, CommandStoreDisconnected{Err: err}
	}

	cmds := Commands{
		AutoMode: atoiOr(raw["auto_mode"], 0),
		HTS:      atofOr(raw["hts"], 0),
		Gain:     atoiOr(raw["gain"], 0),
		TSF:      atoiOr(raw["tsf"], 0),
		BaseDuty: atoiOr(raw["base_duty"], 0),
		Drive:    atofOr(raw["drive"], 0),
		SaveConfig:   atoiOr(raw["save_config"], 0) != 0,
		DeleteConfig: atoiOr(raw["delete_config"], 0) != 0,
	}

	resets := make(map[string]interface{}, len(oneShotFields))
	for _, f := range oneShotFields {
		if raw[f] != "" && raw[f] != "0" {
			resets[f] = "0"
		}
	}
	if len(resets) > 0 {
		if err := c.client.HSet(ctx, helmHash, resets).Err(); err != nil {
			return cmds, CommandStoreDisconnected{Err: err}
		}
	}

	return cmds, nil
}

// WriteTelemetry mirrors the given key/value snapshot into "current_data".
func (c *Channel) WriteTelemetry(ctx context.Context, snapshot map[string]string) error {
	if len(snapshot) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		fields[k] = v
	}
	if err := c.client.HSet(ctx, currentDataHash, fields).Err(); err != nil {
		return CommandStoreDisconnected{Err: err}
	}
	return nil
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func atofOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
