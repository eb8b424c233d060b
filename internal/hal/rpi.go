//go:build linux
// +build linux

package hal

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// RaspberryPiHAL drives real hardware: go-rpio for digital/PWM GPIO lines
// (the two helm direction pins, the alarm buzzer, and the hardware PWM
// channel on GPIO18), periph.io for the compass I2C bus.
type RaspberryPiHAL struct {
	mu      sync.Mutex
	pins    map[int]rpio.Pin
	pwmPins map[int]bool
	i2cBus  i2c.BusCloser
	address byte
	info    BoardInfo
}

func NewRaspberryPiHAL() (*RaspberryPiHAL, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("hal: open gpio: %w", err)
	}
	if _, err := host.Init(); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("hal: init periph.io host: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		rpio.Close()
		return nil, fmt.Errorf("hal: open i2c bus: %w", err)
	}
	info, err := DetectBoard()
	if err != nil {
		info = &BoardInfo{Model: BoardUnknown, Name: "unknown", GPIOChip: "gpiochip0"}
	}
	return &RaspberryPiHAL{
		pins:    make(map[int]rpio.Pin),
		pwmPins: make(map[int]bool),
		i2cBus:  bus,
		info:    *info,
	}, nil
}

func (h *RaspberryPiHAL) GPIO() GPIOProvider { return h }
func (h *RaspberryPiHAL) I2C() I2CProvider   { return h }
func (h *RaspberryPiHAL) Info() BoardInfo    { return h.info }

func (h *RaspberryPiHAL) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.i2cBus != nil {
		h.i2cBus.Close()
	}
	return rpio.Close()
}

func (h *RaspberryPiHAL) SetMode(pin int, mode PinMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := rpio.Pin(pin)
	h.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Mode(rpio.Pwm)
		h.pwmPins[pin] = true
	default:
		return fmt.Errorf("hal: unsupported pin mode %v", mode)
	}
	return nil
}

func (h *RaspberryPiHAL) DigitalWrite(pin int, value bool) error {
	h.mu.Lock()
	p, ok := h.pins[pin]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("hal: pin %d not initialized", pin)
	}
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (h *RaspberryPiHAL) DigitalRead(pin int) (bool, error) {
	h.mu.Lock()
	p, ok := h.pins[pin]
	h.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("hal: pin %d not initialized", pin)
	}
	return p.Read() == rpio.High, nil
}

// PWMWrite maps a 0..1_000_000 micro-unit duty cycle onto go-rpio's
// DutyCycle(dutyLen, cycleLen) call with a fixed 1_000_000-unit cycle, so
// the caller's units need no further scaling.
func (h *RaspberryPiHAL) PWMWrite(pin int, dutyMicro int) error {
	h.mu.Lock()
	p, ok := h.pins[pin]
	isPWM := h.pwmPins[pin]
	h.mu.Unlock()
	if !ok || !isPWM {
		return fmt.Errorf("hal: pin %d not configured for PWM", pin)
	}
	if dutyMicro < 0 || dutyMicro > 1_000_000 {
		return fmt.Errorf("hal: duty %d out of range", dutyMicro)
	}
	p.DutyCycle(uint32(dutyMicro), 1_000_000)
	return nil
}

func (h *RaspberryPiHAL) SetPWMFrequency(pin int, hz int) error {
	h.mu.Lock()
	p, ok := h.pins[pin]
	isPWM := h.pwmPins[pin]
	h.mu.Unlock()
	if !ok || !isPWM {
		return fmt.Errorf("hal: pin %d not configured for PWM", pin)
	}
	p.Freq(hz * 1_000_000 / 1) // go-rpio Freq() takes the PWM clock divider target in Hz of the full cycle
	return nil
}

func (h *RaspberryPiHAL) Open(address byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.address = address
	return nil
}

func (h *RaspberryPiHAL) ReadRegister(register byte, length int) ([]byte, error) {
	h.mu.Lock()
	bus, addr := h.i2cBus, h.address
	h.mu.Unlock()
	read := make([]byte, length)
	if err := bus.Tx(uint16(addr), []byte{register}, read); err != nil {
		return nil, fmt.Errorf("hal: i2c read register 0x%02x: %w", register, err)
	}
	return read, nil
}

func (h *RaspberryPiHAL) WriteRegister(register byte, data []byte) error {
	h.mu.Lock()
	bus, addr := h.i2cBus, h.address
	h.mu.Unlock()
	write := append([]byte{register}, data...)
	if err := bus.Tx(uint16(addr), write, nil); err != nil {
		return fmt.Errorf("hal: i2c write register 0x%02x: %w", register, err)
	}
	return nil
}
