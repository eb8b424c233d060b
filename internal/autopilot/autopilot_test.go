package autopilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/martinmarsh/helm/internal/actuator"
	"github.com/martinmarsh/helm/internal/boatstate"
	"github.com/martinmarsh/helm/internal/command"
	"github.com/martinmarsh/helm/internal/hal"
)

var errSensorDown = errors.New("sensor bus down")

func newHelmForTest(m *hal.MockHAL) (*Helm, error) {
	return actuator.New(m.GPIO())
}

// newHelmWithRudder builds a Helm whose rudder estimate already reads
// target, by arming it and applying full-scale duty over a synthetic
// elapsed time equal to target seconds — avoiding a real sleep in the test.
func newHelmWithRudder(m *hal.MockHAL, target float64) (*Helm, error) {
	clockTime := time.Now()
	h, err := actuator.NewWithClock(m.GPIO(), func() time.Time { return clockTime })
	if err != nil {
		return nil, err
	}
	h.Arm()
	clockTime = clockTime.Add(time.Duration(target * float64(time.Second)))
	if err := h.Apply(2_000_000); err != nil {
		return nil, err
	}
	return h, nil
}

func TestRelativeDirectionWraparound(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 0},
		{1800, 1800},
		{-1800, -1800},
		{1801, -1799},
		{-1801, 1799},
		{3600, 0},
		{-3600, 0},
		{900, 900},
	}
	for _, c := range cases {
		if got := relativeDirection(c.in); got != c.want {
			t.Errorf("relativeDirection(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestRelativeDirectionIdempotentOnInRangeValue(t *testing.T) {
	for _, v := range []int{-1800, -500, 0, 500, 1800} {
		if got := relativeDirection(v); got != v {
			t.Errorf("expected idempotent result for in-range %d, got %d", v, got)
		}
	}
}

// fakeSensor returns a fixed heading/roll/pitch/calibration, overridable per test.
type fakeSensor struct {
	heading, roll, pitch, cal int
	err                       error
}

func (f *fakeSensor) ReadCompass() (int, error) { return f.heading, f.err }
func (f *fakeSensor) ReadRoll() (int, error)    { return f.roll, nil }
func (f *fakeSensor) ReadPitch() (int, error)   { return f.pitch, nil }
func (f *fakeSensor) Calibration() (int, error) { return f.cal, nil }

// fakeCommands returns a fixed Commands snapshot.
type fakeCommands struct {
	cmds command.Commands
}

func (f *fakeCommands) ReadCommands(ctx context.Context) (command.Commands, error) {
	return f.cmds, nil
}

func TestTickGainAndTsfCommandOverrideAddsOne(t *testing.T) {
	state := boatstate.New()
	state.Set(boatstate.KeyHTS, boatstate.Float(90))
	state.Set(boatstate.KeyMagVar, boatstate.Float(0))

	s := &fakeSensor{heading: 800}
	c := &fakeCommands{cmds: command.Commands{AutoMode: 2, Gain: 324, TSF: 1453}}

	m := hal.NewMockHAL()
	h, err := newHelmForTest(m)
	if err != nil {
		t.Fatalf("newHelmForTest: %v", err)
	}
	cfg := Config{TickInterval: 10 * time.Millisecond, DefaultGain: 325, DefaultTSF: 1454, DefaultBaseDuty: 100000}
	l := New(cfg, s, h, state, c)

	l.tick(context.Background())

	gain, ok := state.Get(boatstate.KeyGain)
	if !ok || gain.Int != 325 {
		t.Fatalf("expected effective gain 325, got %+v ok=%v", gain, ok)
	}
	tsf, ok := state.Get(boatstate.KeyTSF)
	if !ok || tsf.Int != 1454 {
		t.Fatalf("expected effective tsf 1454, got %+v ok=%v", tsf, ok)
	}
}

func TestTickRudderLimitTripsToStandbyAndZeroesAppliedPower(t *testing.T) {
	state := boatstate.New()
	state.Set(boatstate.KeyHTS, boatstate.Float(90))
	state.Set(boatstate.KeyMagVar, boatstate.Float(0))

	s := &fakeSensor{heading: 800}
	c := &fakeCommands{}

	m := hal.NewMockHAL()
	h, err := newHelmWithRudder(m, 15.1)
	if err != nil {
		t.Fatalf("newHelmWithRudder: %v", err)
	}
	cfg := Config{TickInterval: 10 * time.Millisecond, DefaultGain: 325, DefaultTSF: 1454, DefaultBaseDuty: 100000}
	l := New(cfg, s, h, state, c)
	l.mode = Auto
	l.lastMode = Auto

	l.tick(context.Background())

	if l.mode != Standby {
		t.Fatalf("expected mode to trip to Standby, got %v", l.mode)
	}
	power, ok := state.Get(boatstate.KeyPower)
	if !ok || power.Int != 0 {
		t.Fatalf("expected applied power 0 on the tripping tick, got %+v ok=%v", power, ok)
	}
}

func TestTickRudderLimitTripsInManualModeToo(t *testing.T) {
	state := boatstate.New()
	state.Set(boatstate.KeyHTS, boatstate.Float(90))
	state.Set(boatstate.KeyMagVar, boatstate.Float(0))

	s := &fakeSensor{heading: 800}
	c := &fakeCommands{}

	m := hal.NewMockHAL()
	h, err := newHelmWithRudder(m, 15.1)
	if err != nil {
		t.Fatalf("newHelmWithRudder: %v", err)
	}
	cfg := Config{TickInterval: 10 * time.Millisecond, DefaultGain: 325, DefaultTSF: 1454, DefaultBaseDuty: 100000}
	l := New(cfg, s, h, state, c)
	l.mode = Manual
	l.lastMode = Manual

	l.tick(context.Background())

	if l.mode != Standby {
		t.Fatalf("expected manual-mode rudder-limit breach to trip to Standby, got %v", l.mode)
	}
}

func TestHandleActuatorFaultDisarmsAndAlarmsEveryTick(t *testing.T) {
	state := boatstate.New()
	s := &fakeSensor{heading: 100}
	c := &fakeCommands{}
	m := hal.NewMockHAL()
	h, err := newHelmForTest(m)
	if err != nil {
		t.Fatalf("newHelmForTest: %v", err)
	}
	cfg := Config{DefaultGain: 325, DefaultTSF: 1454}
	l := New(cfg, s, h, state, c)
	l.mode = Auto
	h.Arm()

	if err := l.handleActuatorFault(errors.New("pwm bus error")); err != nil {
		t.Fatalf("expected non-fatal result on first fault, got %v", err)
	}
	if l.mode != Standby {
		t.Fatalf("expected handleActuatorFault to force Standby, got %v", l.mode)
	}
	if h.Armed() {
		t.Fatal("expected handleActuatorFault to disarm the helm")
	}
}

func TestHandleActuatorFaultEscalatesToFatalAfterPersistentStreak(t *testing.T) {
	state := boatstate.New()
	s := &fakeSensor{heading: 100}
	c := &fakeCommands{}
	m := hal.NewMockHAL()
	h, err := newHelmForTest(m)
	if err != nil {
		t.Fatalf("newHelmForTest: %v", err)
	}
	cfg := Config{DefaultGain: 325, DefaultTSF: 1454}
	l := New(cfg, s, h, state, c)

	applyErr := errors.New("pwm bus error")
	var lastErr error
	for i := 0; i < maxActuatorFaultTicks; i++ {
		lastErr = l.handleActuatorFault(applyErr)
		if lastErr != nil {
			t.Fatalf("expected tick %d of the streak to stay non-fatal, got %v", i+1, lastErr)
		}
	}
	lastErr = l.handleActuatorFault(applyErr)
	if lastErr == nil {
		t.Fatal("expected a fatal error once the actuator fault streak exceeds maxActuatorFaultTicks")
	}
}

func TestTickSensorFailureSkipsActuation(t *testing.T) {
	state := boatstate.New()
	s := &fakeSensor{heading: 800, err: errSensorDown}
	c := &fakeCommands{cmds: command.Commands{}}

	m := hal.NewMockHAL()
	h, err := newHelmForTest(m)
	if err != nil {
		t.Fatalf("newHelmForTest: %v", err)
	}
	cfg := Config{TickInterval: 10 * time.Millisecond, DefaultGain: 325, DefaultTSF: 1454}
	l := New(cfg, s, h, state, c)

	l.tick(context.Background())

	if _, ok := state.Get(boatstate.KeyCompass); ok {
		t.Fatal("expected no state publish on a sensor read failure")
	}
}

func TestRunContinuesThroughNonFatalSensorFault(t *testing.T) {
	state := boatstate.New()
	s := &fakeSensor{heading: 100, err: errSensorDown}
	c := &fakeCommands{}
	m := hal.NewMockHAL()
	h, err := newHelmForTest(m)
	if err != nil {
		t.Fatalf("newHelmForTest: %v", err)
	}
	cfg := Config{TickInterval: 2 * time.Millisecond, WarmupDelay: 0, DefaultGain: 325, DefaultTSF: 1454}
	l := New(cfg, s, h, state, c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("expected Run to absorb repeated SensorFaults and exit cleanly on ctx cancellation, got %v", err)
	}
}

func TestApplyModeCommandStandbyResetsRudder(t *testing.T) {
	state := boatstate.New()
	s := &fakeSensor{heading: 100}
	c := &fakeCommands{}
	m := hal.NewMockHAL()
	h, err := newHelmWithRudder(m, 10)
	if err != nil {
		t.Fatalf("newHelmWithRudder: %v", err)
	}
	cfg := Config{DefaultGain: 325, DefaultTSF: 1454}
	l := New(cfg, s, h, state, c)

	l.applyModeCommand(command.Commands{AutoMode: 1})

	if l.mode != Standby {
		t.Fatalf("expected mode Standby, got %v", l.mode)
	}
	if h.RudderEstimate() != 0 {
		t.Fatalf("expected rudder estimate reset to 0, got %v", h.RudderEstimate())
	}
}
