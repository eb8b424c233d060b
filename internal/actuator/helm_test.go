package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/martinmarsh/helm/internal/hal"
)

// flakyGPIO wraps a GPIOProvider and fails the next N calls to PWMWrite,
// so tests can exercise Apply's retry-once policy precisely.
type flakyGPIO struct {
	hal.GPIOProvider
	pwmFailuresLeft int
}

func (g *flakyGPIO) PWMWrite(pin int, dutyMicro int) error {
	if g.pwmFailuresLeft > 0 {
		g.pwmFailuresLeft--
		return errors.New("pwm bus error")
	}
	return g.GPIOProvider.PWMWrite(pin, dutyMicro)
}

func newTestHelm(t *testing.T) *Helm {
	t.Helper()
	m := hal.NewMockHAL()
	h, err := New(m.GPIO())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestNewConfiguresPinsAndDisarmed(t *testing.T) {
	h := newTestHelm(t)
	if h.Armed() {
		t.Fatal("expected Helm to start disarmed")
	}
}

func TestApplyWhileDisarmedDoesNotDriveMotor(t *testing.T) {
	h := newTestHelm(t)
	if err := h.Apply(50000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.AppliedPower() != 0 {
		t.Fatalf("expected no applied power while disarmed, got %d", h.AppliedPower())
	}
}

func TestApplyBelowDeadZoneClampsToZero(t *testing.T) {
	h := newTestHelm(t)
	h.Arm()
	if err := h.Apply(1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.AppliedPower() != 0 {
		t.Fatalf("expected duty below dead zone to clamp to 0, got %d", h.AppliedPower())
	}
}

func TestApplyAboveSaturationClampsToMax(t *testing.T) {
	h := newTestHelm(t)
	h.Arm()
	if err := h.Apply(999000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.AppliedPower() != dutyMax {
		t.Fatalf("expected duty above saturation to clamp to %d, got %d", dutyMax, h.AppliedPower())
	}
}

func TestApplyNegativeCorrectionDrivesPort(t *testing.T) {
	h := newTestHelm(t)
	h.Arm()
	if err := h.Apply(-50000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.AppliedPower() >= 0 {
		t.Fatalf("expected negative applied power for port correction, got %d", h.AppliedPower())
	}
}

func TestRudderEstimateIntegratesOverElapsedTime(t *testing.T) {
	h := newTestHelm(t)
	h.Arm()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.lastTick = start
	h.now = func() time.Time { return start.Add(500 * time.Millisecond) }

	if err := h.Apply(100000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := float64(100000) * 0.5 / 1_000_000
	got := h.RudderEstimate()
	if got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected rudder estimate %v, got %v", want, got)
	}
}

func TestResetRudderZeroes(t *testing.T) {
	h := newTestHelm(t)
	h.Arm()
	h.now = func() time.Time { return h.lastTick.Add(time.Second) }
	h.Apply(100000)
	if h.RudderEstimate() == 0 {
		t.Fatal("expected nonzero rudder estimate before reset")
	}
	h.ResetRudder()
	if h.RudderEstimate() != 0 {
		t.Fatalf("expected rudder estimate 0 after reset, got %v", h.RudderEstimate())
	}
}

func TestDisarmZeroesAppliedPowerImmediately(t *testing.T) {
	h := newTestHelm(t)
	h.Arm()
	h.now = func() time.Time { return h.lastTick.Add(time.Second) }
	h.Apply(500000)
	if h.AppliedPower() == 0 {
		t.Fatal("expected nonzero applied power before disarm")
	}
	if err := h.Disarm(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.AppliedPower() != 0 {
		t.Fatalf("expected applied power 0 immediately after Disarm, got %d", h.AppliedPower())
	}
	if h.Armed() {
		t.Fatal("expected Armed() false after Disarm")
	}
}

func TestApplyRetriesOnceAfterSinglePWMWriteFailure(t *testing.T) {
	m := hal.NewMockHAL()
	flaky := &flakyGPIO{GPIOProvider: m.GPIO(), pwmFailuresLeft: 1}
	h, err := New(flaky)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Arm()
	if err := h.Apply(50000); err != nil {
		t.Fatalf("expected single write fault to be swallowed by the retry, got %v", err)
	}
	if h.AppliedPower() != 50000 {
		t.Fatalf("expected applied power 50000 after successful retry, got %d", h.AppliedPower())
	}
}

func TestApplyEscalatesToActuatorFaultAfterRetryAlsoFails(t *testing.T) {
	m := hal.NewMockHAL()
	flaky := &flakyGPIO{GPIOProvider: m.GPIO(), pwmFailuresLeft: 2}
	h, err := New(flaky)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Arm()
	err = h.Apply(50000)
	if err == nil {
		t.Fatal("expected ActuatorFault when both the write and its retry fail")
	}
	var af ActuatorFault
	if !errors.As(err, &af) {
		t.Fatalf("expected ActuatorFault, got %v", err)
	}
}

func TestAlarmOnOff(t *testing.T) {
	h := newTestHelm(t)
	if err := h.AlarmOn(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.AlarmOff(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
