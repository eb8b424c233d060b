// Package sensor implements the attitude sensor port against a CMPS12-style
// I2C compass/IMU module: heading, roll, pitch and calibration state.
package sensor

import (
	"fmt"

	"github.com/martinmarsh/helm/internal/hal"
)

// Register layout and bus address ported from the donor's compass driver.
const (
	Address = 0x60
	Bus     = 1

	regHeadingHi = 2
	regHeadingLo = 3
	regPitch     = 0x04
	regRoll      = 0x05
	regCal       = 0x1E

	// maxConsecutiveFailures bounds how many back-to-back transient bus
	// errors a reader swallows before escalating to a SensorFault.
	maxConsecutiveFailures = 5
)

// AttitudeSensor exposes four synchronous reads, each returning the
// previous value on a transient bus error rather than propagating it; a
// read returns SensorFault only after maxConsecutiveFailures failures in a
// row.
type AttitudeSensor interface {
	ReadCompass() (int, error)
	ReadRoll() (int, error)
	ReadPitch() (int, error)
	Calibration() (int, error)
}

// Compass drives a CMPS12-class module over I2C. Heading is returned
// already corrected and wrapped into [0, 3600) deci-degrees.
type Compass struct {
	i2c hal.I2CProvider

	correction int

	lastHeading int
	lastRoll    int
	lastPitch   int
	lastCal     int

	headingFails int
	rollFails    int
	pitchFails   int
	calFails     int
}

// New opens the compass at its fixed bus address. correction is added to
// the raw heading register before wrapping, to compensate for a sensor
// mounted off the boat's centreline.
func New(i2c hal.I2CProvider, correction int) (*Compass, error) {
	if err := i2c.Open(Address); err != nil {
		return nil, fmt.Errorf("sensor: open compass at 0x%02x: %w", Address, err)
	}
	return &Compass{i2c: i2c, correction: correction}, nil
}

// SensorFault reports a persistent bus failure. A single transient error is
// swallowed by the reader methods; each reader returns this type once its
// own read has failed maxConsecutiveFailures times in a row.
type SensorFault struct {
	Err error
}

func (e SensorFault) Error() string { return fmt.Sprintf("sensor fault: %v", e.Err) }
func (e SensorFault) Unwrap() error { return e.Err }

func readSignedWord(i2c hal.I2CProvider, hi, lo byte) (int, error) {
	hiByte, err := i2c.ReadRegister(hi, 1)
	if err != nil {
		return 0, err
	}
	loByte, err := i2c.ReadRegister(lo, 1)
	if err != nil {
		return 0, err
	}
	return int(int16(uint16(hiByte[0])<<8 | uint16(loByte[0]))), nil
}

func readSignedByte(i2c hal.I2CProvider, reg byte) (int, error) {
	b, err := i2c.ReadRegister(reg, 1)
	if err != nil {
		return 0, err
	}
	return int(int8(b[0])), nil
}

// ReadCompass returns the heading in deci-degrees, wrapped to [0, 3600).
// A transient bus error returns the previous reading; only once the error
// persists for maxConsecutiveFailures reads in a row is it surfaced as a
// SensorFault.
func (c *Compass) ReadCompass() (int, error) {
	v, err := readSignedWord(c.i2c, regHeadingHi, regHeadingLo)
	if err != nil {
		c.headingFails++
		if c.headingFails >= maxConsecutiveFailures {
			return c.lastHeading, SensorFault{Err: err}
		}
		return c.lastHeading, nil
	}
	c.headingFails = 0
	v += c.correction
	if v >= 3600 {
		v -= 3600
	}
	if v < 0 {
		v += 3600
	}
	c.lastHeading = v
	return v, nil
}

// ReadRoll returns signed heel in degrees.
func (c *Compass) ReadRoll() (int, error) {
	v, err := readSignedByte(c.i2c, regRoll)
	if err != nil {
		c.rollFails++
		if c.rollFails >= maxConsecutiveFailures {
			return c.lastRoll, SensorFault{Err: err}
		}
		return c.lastRoll, nil
	}
	c.rollFails = 0
	c.lastRoll = v
	return v, nil
}

// ReadPitch returns signed pitch in degrees.
func (c *Compass) ReadPitch() (int, error) {
	v, err := readSignedByte(c.i2c, regPitch)
	if err != nil {
		c.pitchFails++
		if c.pitchFails >= maxConsecutiveFailures {
			return c.lastPitch, SensorFault{Err: err}
		}
		return c.lastPitch, nil
	}
	c.pitchFails = 0
	c.lastPitch = v
	return v, nil
}

// Calibration returns the module's self-reported calibration state, 0..3.
func (c *Compass) Calibration() (int, error) {
	b, err := c.i2c.ReadRegister(regCal, 1)
	if err != nil {
		c.calFails++
		if c.calFails >= maxConsecutiveFailures {
			return c.lastCal, SensorFault{Err: err}
		}
		return c.lastCal, nil
	}
	c.calFails = 0
	c.lastCal = int(b[0])
	return c.lastCal, nil
}
