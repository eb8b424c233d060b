// Package actuator drives the helm motor's H-bridge direction pins and PWM
// channel, and the alarm buzzer, through the hal GPIO surface.
package actuator

import (
	"fmt"
	"time"

	"github.com/martinmarsh/helm/internal/hal"
)

// Pin layout ported from the donor boat computer: two direction GPIOs
// driving an H-bridge, one hardware PWM channel, one buzzer line.
const (
	PinPort      = 23
	PinStarboard = 24
	PinPWM       = 18
	PinBuzzer    = 25

	pwmFrequencyHz = 5000

	dutyDeadZone   = 2000
	dutyFullOnFrom = 998000
	dutyMax        = 1_000_000
)

// Helm owns the motor PWM output, direction pins, the alarm buzzer, and the
// rudder_estimate integral. It is exclusively owned by the autopilot task;
// no other component may call Apply.
type Helm struct {
	gpio hal.GPIOProvider

	armed    bool
	rudder   float64
	applied  int
	lastTick time.Time

	now func() time.Time
}

// New configures the direction, PWM and buzzer pins and returns a disarmed
// Helm.
func New(gpio hal.GPIOProvider) (*Helm, error) {
	if err := gpio.SetMode(PinPort, hal.Output); err != nil {
		return nil, fmt.Errorf("actuator: configure port pin: %w", err)
	}
	if err := gpio.SetMode(PinStarboard, hal.Output); err != nil {
		return nil, fmt.Errorf("actuator: configure starboard pin: %w", err)
	}
	if err := gpio.SetMode(PinBuzzer, hal.Output); err != nil {
		return nil, fmt.Errorf("actuator: configure buzzer pin: %w", err)
	}
	if err := gpio.SetMode(PinPWM, hal.PWM); err != nil {
		return nil, fmt.Errorf("actuator: configure pwm pin: %w", err)
	}
	if err := gpio.SetPWMFrequency(PinPWM, pwmFrequencyHz); err != nil {
		return nil, fmt.Errorf("actuator: set pwm frequency: %w", err)
	}
	return &Helm{gpio: gpio, now: time.Now, lastTick: time.Now()}, nil
}

// NewWithClock behaves like New but sources elapsed-time calculations from
// now instead of time.Now, so tests can drive the rudder integral without
// sleeping.
func NewWithClock(gpio hal.GPIOProvider, now func() time.Time) (*Helm, error) {
	h, err := New(gpio)
	if err != nil {
		return nil, err
	}
	h.now = now
	h.lastTick = now()
	return h, nil
}

// Arm enables actuation; while disarmed, Apply drives zero duty.
func (h *Helm) Arm() { h.armed = true }

// Disarm stops actuation and immediately zeroes PWM duty. The autopilot
// calls this on any ActuatorFault, on a rudder-limit trip, when entering
// standby, and as its final act on cancellation.
func (h *Helm) Disarm() error {
	h.armed = false
	h.applied = 0
	return h.writeDuty(0, 1)
}

// Armed reports whether Apply will actually drive the motor.
func (h *Helm) Armed() bool { return h.armed }

// RudderEstimate returns the current dimensionless integral of applied
// motor power, used as a proxy for rudder angle.
func (h *Helm) RudderEstimate() float64 { return h.rudder }

// ResetRudder zeroes the rudder estimate, on an operator auto_mode command.
func (h *Helm) ResetRudder() { h.rudder = 0 }

// AppliedPower returns the signed duty last written to the motor (0 while
// disarmed).
func (h *Helm) AppliedPower() int { return h.applied }

// Apply drives the motor toward the given signed correction. Positive
// drives starboard, negative drives port. Duty below the dead zone is
// clamped to 0; duty above the near-saturation threshold is clamped to full
// scale. The rudder estimate integrates applied power over real elapsed
// time between calls.
func (h *Helm) Apply(correction int) error {
	now := h.now()
	elapsed := now.Sub(h.lastTick).Seconds()
	h.lastTick = now

	if !h.armed {
		h.applied = 0
		if err := h.writeDuty(0, 1); err != nil {
			return err
		}
		h.rudder += float64(h.applied) * elapsed / 1_000_000
		return nil
	}

	direction := 1
	if correction < 0 {
		direction = -1
	}

	duty := correction
	if duty < 0 {
		duty = -duty
	}
	switch {
	case duty < dutyDeadZone:
		duty = 0
	case duty > dutyFullOnFrom:
		duty = dutyMax
	}

	// A PWM/GPIO write fault is retried once per tick before being
	// escalated; a single bus hiccup should not disarm the helm.
	if err := h.writeDuty(duty, direction); err != nil {
		if err := h.writeDuty(duty, direction); err != nil {
			return fmt.Errorf("actuator: %w", ActuatorFault{Err: err})
		}
	}

	h.applied = duty * direction
	h.rudder += float64(h.applied) * elapsed / 1_000_000
	return nil
}

func (h *Helm) writeDuty(duty, direction int) error {
	if direction >= 0 {
		if err := h.gpio.DigitalWrite(PinPort, false); err != nil {
			return err
		}
		if err := h.gpio.DigitalWrite(PinStarboard, duty > 0); err != nil {
			return err
		}
	} else {
		if err := h.gpio.DigitalWrite(PinStarboard, false); err != nil {
			return err
		}
		if err := h.gpio.DigitalWrite(PinPort, duty > 0); err != nil {
			return err
		}
	}
	return h.gpio.PWMWrite(PinPWM, duty)
}

// AlarmOn sounds the buzzer.
func (h *Helm) AlarmOn() error {
	return h.gpio.DigitalWrite(PinBuzzer, true)
}

// AlarmOff silences the buzzer.
func (h *Helm) AlarmOff() error {
	return h.gpio.DigitalWrite(PinBuzzer, false)
}

// ActuatorFault wraps a PWM/GPIO write failure.
type ActuatorFault struct {
	Err error
}

func (e ActuatorFault) Error() string { return fmt.Sprintf("actuator fault: %v", e.Err) }
func (e ActuatorFault) Unwrap() error { return e.Err }
