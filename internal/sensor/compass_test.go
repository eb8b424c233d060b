package sensor

import (
	"errors"
	"testing"

	"github.com/martinmarsh/helm/internal/hal"
)

type fakeI2C struct {
	regs    map[byte][]byte
	failing bool
}

func newFakeI2C() *fakeI2C { return &fakeI2C{regs: map[byte][]byte{}} }

func (f *fakeI2C) Open(address byte) error { return nil }
func (f *fakeI2C) ReadRegister(register byte, length int) ([]byte, error) {
	if f.failing {
		return nil, errors.New("bus error")
	}
	v, ok := f.regs[register]
	if !ok {
		return make([]byte, length), nil
	}
	return v, nil
}
func (f *fakeI2C) WriteRegister(register byte, data []byte) error { return nil }
func (f *fakeI2C) Close() error                                  { return nil }

var _ hal.I2CProvider = (*fakeI2C)(nil)

func TestReadCompassAppliesCorrectionAndWraps(t *testing.T) {
	i2c := newFakeI2C()
	i2c.regs[regHeadingHi] = []byte{byte(3550 >> 8)}
	i2c.regs[regHeadingLo] = []byte{byte(3550 & 0xff)}
	c, err := New(i2c, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := c.ReadCompass()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 50 {
		t.Fatalf("expected wrapped heading 50, got %d", v)
	}
}

func TestReadCompassTransientFailureReturnsLastGoodValue(t *testing.T) {
	i2c := newFakeI2C()
	i2c.regs[regHeadingHi] = []byte{0}
	i2c.regs[regHeadingLo] = []byte{100}
	c, err := New(i2c, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, _ := c.ReadCompass()

	i2c.failing = true
	second, err := c.ReadCompass()
	if err != nil {
		t.Fatalf("expected transient bus error to be swallowed, got %v", err)
	}
	if second != first {
		t.Fatalf("expected last good heading %d on bus failure, got %d", first, second)
	}
}

func TestReadRollSignedByte(t *testing.T) {
	i2c := newFakeI2C()
	i2c.regs[regRoll] = []byte{0xFE} // -2
	c, err := New(i2c, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := c.ReadRoll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != -2 {
		t.Fatalf("expected -2, got %d", v)
	}
}

func TestReadCompassEscalatesToSensorFaultAfterConsecutiveFailures(t *testing.T) {
	i2c := newFakeI2C()
	i2c.regs[regHeadingHi] = []byte{0}
	i2c.regs[regHeadingLo] = []byte{100}
	c, err := New(i2c, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, _ := c.ReadCompass()

	i2c.failing = true
	var lastErr error
	for i := 0; i < maxConsecutiveFailures; i++ {
		_, lastErr = c.ReadCompass()
	}
	var sf SensorFault
	if !errors.As(lastErr, &sf) {
		t.Fatalf("expected SensorFault after %d consecutive failures, got %v", maxConsecutiveFailures, lastErr)
	}

	i2c.failing = false
	recovered, err := c.ReadCompass()
	if err != nil {
		t.Fatalf("unexpected error on recovery: %v", err)
	}
	if recovered != first {
		t.Fatalf("expected recovered heading %d, got %d", first, recovered)
	}
}

func TestCalibrationPersistsLastValueOnFailure(t *testing.T) {
	i2c := newFakeI2C()
	i2c.regs[regCal] = []byte{3}
	c, err := New(i2c, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, _ := c.Calibration()
	if first != 3 {
		t.Fatalf("expected calibration 3, got %d", first)
	}
	i2c.failing = true
	second, err := c.Calibration()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != 3 {
		t.Fatalf("expected cached calibration 3 on bus failure, got %d", second)
	}
}
