// Package hal abstracts the GPIO and I2C transports the autopilot core runs
// on, so the attitude sensor and helm actuator never import a board-specific
// driver directly.
package hal

import (
	"fmt"
	"sync"
)

// PinMode is the electrical mode a GPIO line is configured for.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// GPIOProvider drives digital and PWM-capable GPIO lines.
type GPIOProvider interface {
	// SetMode configures a pin for digital input, digital output, or PWM.
	SetMode(pin int, mode PinMode) error
	// DigitalWrite drives a digital output pin high or low.
	DigitalWrite(pin int, value bool) error
	// DigitalRead reads a digital input pin.
	DigitalRead(pin int) (bool, error)
	// PWMWrite sets duty cycle in micro-units: 0 = 0%, 1_000_000 = 100%.
	PWMWrite(pin int, dutyMicro int) error
	// SetPWMFrequency sets the PWM carrier frequency in Hz for a pin already
	// in PWM mode.
	SetPWMFrequency(pin int, hz int) error
	// Close releases the GPIO chip.
	Close() error
}

// I2CProvider drives a single I2C peripheral addressed by register number,
// the access pattern the CMPS12-class compass uses.
type I2CProvider interface {
	// Open selects the peripheral's bus address for subsequent register
	// operations.
	Open(address byte) error
	// ReadRegister reads length bytes starting at register.
	ReadRegister(register byte, length int) ([]byte, error)
	// WriteRegister writes data starting at register.
	WriteRegister(register byte, data []byte) error
	// Close releases the bus.
	Close() error
}

// HAL bundles the transports a board exposes plus identifying information
// logged at startup.
type HAL interface {
	GPIO() GPIOProvider
	I2C() I2CProvider
	Info() BoardInfo
	Close() error
}

var (
	globalHAL HAL
	halMu     sync.RWMutex
)

// SetGlobalHAL installs the process-wide HAL instance. Called once at
// startup by the board-specific init path (see cmd/helm/hal_init_*.go).
func SetGlobalHAL(h HAL) {
	halMu.Lock()
	defer halMu.Unlock()
	globalHAL = h
}

// GetGlobalHAL returns the process-wide HAL instance, or an error if
// SetGlobalHAL has not yet run.
func GetGlobalHAL() (HAL, error) {
	halMu.RLock()
	defer halMu.RUnlock()
	if globalHAL == nil {
		return nil, fmt.Errorf("hal: not initialized")
	}
	return globalHAL, nil
}
