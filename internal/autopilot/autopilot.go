// Package autopilot implements the closed-loop heading controller: reads
// the attitude sensor and operator commands once per tick, decides a mode,
// drives the helm actuator, and publishes updated state.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/martinmarsh/helm/internal/actuator"
	"github.com/martinmarsh/helm/internal/boatstate"
	"github.com/martinmarsh/helm/internal/command"
	"github.com/martinmarsh/helm/internal/sensor"
)

// Mode is the autopilot's operating state.
type Mode int

const (
	Standby Mode = 1
	Auto    Mode = 2
	Manual  Mode = 3
)

func (m Mode) label() string {
	switch m {
	case Auto:
		return "auto"
	case Manual:
		return "manual"
	default:
		return "stand-by"
	}
}

// RudderLimit is the |rudder_estimate| trip point past which the autopilot
// forces standby and alarms, modelling the helm running against the stops.
const RudderLimit = 15.0

// maxActuatorFaultTicks bounds how many consecutive ticks of ActuatorFault
// the loop tolerates (disarmed and alarming) before surfacing a fatal error
// to the supervisor.
const maxActuatorFaultTicks = 5

// Config holds the tick cadence and default gains, sourced from the process
// configuration.
type Config struct {
	TickInterval    time.Duration
	WarmupDelay     time.Duration
	DefaultGain     int
	DefaultTSF      int
	DefaultBaseDuty int
}

// Loop is the autopilot's control core. One instance owns the actuator
// exclusively; no other task may call into it concurrently.
type Loop struct {
	cfg      Config
	sensor   sensor.AttitudeSensor
	helm     *Helm
	state    *boatstate.State
	commands command.Source

	mode         Mode
	compassMode  int
	lastHeading  int
	haveLastHead bool
	lastMode     Mode
	lastCompass  int

	actuatorFaultStreak int
}

// Helm is the actuator type the loop drives (an alias of actuator.Helm).
type Helm = actuator.Helm

// New constructs a Loop in the initial standby state.
func New(cfg Config, s sensor.AttitudeSensor, h *Helm, state *boatstate.State, commands command.Source) *Loop {
	return &Loop{
		cfg:         cfg,
		sensor:      s,
		helm:        h,
		state:       state,
		commands:    commands,
		mode:        Standby,
		lastMode:    Standby,
		compassMode: 1,
		lastCompass: 1,
	}
}

// relativeDirection wraps a deci-degree difference into [-1800, 1800].
func relativeDirection(d int) int {
	switch {
	case d < -1800:
		return d + 3600
	case d > 1800:
		return d - 3600
	default:
		return d
	}
}

// Run blocks until ctx is cancelled, ticking once per cfg.TickInterval after
// an initial sensor warm-up delay. On cancellation it disarms the actuator
// and sets PWM duty to 0 before returning.
func (l *Loop) Run(ctx context.Context) error {
	select {
	case <-time.After(l.cfg.WarmupDelay):
	case <-ctx.Done():
		return l.shutdown()
	}

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				var sf SensorFault
				if errors.As(err, &sf) {
					continue
				}
				return err
			}
		}
	}
}

func (l *Loop) shutdown() error {
	return l.helm.Disarm()
}

// tick runs exactly one {read sensors -> read commands -> decide mode ->
// actuate -> publish state} cycle. A SensorFault skips actuation for this
// tick only and is not propagated as fatal; a run of ActuatorFaults beyond
// maxActuatorFaultTicks is returned so the supervisor can surface it.
func (l *Loop) tick(ctx context.Context) error {
	cal, _ := l.sensor.Calibration()
	heal, _ := l.sensor.ReadRoll()
	pitch, _ := l.sensor.ReadPitch()
	headingInt, err := l.sensor.ReadCompass()
	if err != nil {
		l.helm.AlarmOn()
		return SensorFault{Err: err}
	}

	cmds, _ := l.commands.ReadCommands(ctx)
	l.applyModeCommand(cmds)

	if math.Abs(l.helm.RudderEstimate()) > RudderLimit && (l.mode == Auto || l.mode == Manual) {
		l.mode = Standby
		l.fireAlarmPulse()
	}

	if l.mode != l.lastMode {
		l.state.Set(boatstate.KeyAutoHelm, boatstate.Text(l.mode.label()))
		l.fireAlarmPulse()
		l.lastMode = l.mode
	}

	headingInt = l.selectHeadingSource(headingInt)

	if !l.haveLastHead {
		l.lastHeading = headingInt
		l.haveLastHead = true
	}

	gain := l.cfg.DefaultGain
	if cmds.Gain != 0 {
		gain = cmds.Gain + 1
	}
	tsf := l.cfg.DefaultTSF
	if cmds.TSF != 0 {
		tsf = cmds.TSF + 1
	}

	htsInt := l.headingToSteer(cmds)

	errorCorrect := relativeDirection(htsInt - headingInt)
	turnRate := relativeDirection(headingInt - l.lastHeading)
	correction := int(float64(errorCorrect-turnRate*tsf/100) * float64(gain))

	baseDuty := l.cfg.DefaultBaseDuty
	var actuatorErr error
	switch l.mode {
	case Auto:
		if cmds.BaseDuty != 0 {
			baseDuty = cmds.BaseDuty
		}
		l.helm.Arm()
		actuatorErr = l.helm.Apply(correction)
	case Manual:
		baseDuty = 0
		l.helm.Arm()
		actuatorErr = l.helm.Apply(int(cmds.Drive * 10000))
	case Standby:
		l.helm.Disarm()
		l.actuatorFaultStreak = 0
	}

	l.publishState(cal, heal, pitch, gain, tsf, htsInt, baseDuty, headingInt)
	l.lastHeading = headingInt

	if actuatorErr != nil {
		return l.handleActuatorFault(actuatorErr)
	}
	if l.mode == Auto || l.mode == Manual {
		l.actuatorFaultStreak = 0
	}
	return nil
}

// handleActuatorFault disarms and alarms on every actuation failure,
// escalating to a fatal error once the failure has persisted for more than
// maxActuatorFaultTicks consecutive ticks.
func (l *Loop) handleActuatorFault(err error) error {
	l.actuatorFaultStreak++
	l.mode = Standby
	l.helm.Disarm()
	l.helm.AlarmOn()
	if l.actuatorFaultStreak > maxActuatorFaultTicks {
		return fmt.Errorf("autopilot: actuator fault persisted for %d ticks: %w", l.actuatorFaultStreak, err)
	}
	return nil
}

func (l *Loop) applyModeCommand(cmds command.Commands) {
	if cmds.AutoMode == 0 {
		return
	}
	if cmds.AutoMode == 1 {
		l.mode = Standby
	} else {
		l.mode = Mode(cmds.AutoMode)
	}
	l.helm.ResetRudder()
}

// selectHeadingSource applies the compass_mode / external HDM rule,
// publishing head_diff and alarming once on a compass_mode transition.
// compassMode starts at 1 and nothing in this package sets it to 2
// (Commands has no compass_mode field), so the sensor heading is the one
// returned.
func (l *Loop) selectHeadingSource(headingInt int) int {
	hdm, ok := l.state.Get(boatstate.KeyHDM)
	if ok {
		hdm10 := int(math.Round(hdm.Float * 10))
		l.state.Set(boatstate.KeyHeadDiff, boatstate.Int(int64(relativeDirection(headingInt-hdm10))))
		if l.compassMode == 2 {
			headingInt = hdm10
		} else {
			l.compassMode = 1
		}
	} else {
		l.compassMode = 1
	}

	if l.compassMode != l.lastCompass {
		label := "int"
		if l.compassMode == 2 {
			label = "ext"
		}
		l.state.Set(boatstate.KeyCompassMode, boatstate.Text(label))
		l.fireAlarmPulse()
		l.lastCompass = l.compassMode
	}
	return headingInt
}

// headingToSteer resolves hts_int: a command override, else BoatState hts +
// mag_var scaled to deci-degrees.
func (l *Loop) headingToSteer(cmds command.Commands) int {
	if cmds.HTS != 0 {
		return int(cmds.HTS)
	}
	hts, _ := l.state.Get(boatstate.KeyHTS)
	magVar, _ := l.state.Get(boatstate.KeyMagVar)
	return int(math.Round((hts.Float + magVar.Float) * 10))
}

func (l *Loop) fireAlarmPulse() {
	l.helm.AlarmOn()
	go func() {
		time.Sleep(200 * time.Millisecond)
		l.helm.AlarmOff()
	}()
}

func (l *Loop) publishState(cal, heal, pitch, gain, tsf, hts, baseDuty, headingInt int) {
	l.state.Set(boatstate.KeyCompass, boatstate.Float(float64(headingInt)/10))
	l.state.Set(boatstate.KeyCompassCal, boatstate.Int(int64(cal)))
	l.state.Set(boatstate.KeyGain, boatstate.Int(int64(gain)))
	l.state.Set(boatstate.KeyTSF, boatstate.Int(int64(tsf)))
	l.state.Set(boatstate.KeyBaseDuty, boatstate.Int(int64(baseDuty)))
	l.state.Set(boatstate.KeyPower, boatstate.Int(int64(l.helm.AppliedPower())))
	l.state.Set(boatstate.KeyRudder, boatstate.Float(l.helm.RudderEstimate()))
	l.state.Set(boatstate.KeyHTS, boatstate.Int(int64(hts)))

	updateExtreme(l.state, boatstate.KeyMaxHeal, float64(heal), true)
	updateExtreme(l.state, boatstate.KeyMinHeal, float64(heal), false)
	updateExtreme(l.state, boatstate.KeyMaxPitch, float64(pitch), true)
	updateExtreme(l.state, boatstate.KeyMinPitch, float64(pitch), false)
}

func updateExtreme(state *boatstate.State, key boatstate.Key, v float64, max bool) {
	prev, ok := state.Get(key)
	if !ok {
		state.Set(key, boatstate.Float(v))
		return
	}
	if max && v > prev.Float {
		state.Set(key, boatstate.Float(v))
	} else if !max && v < prev.Float {
		state.Set(key, boatstate.Float(v))
	}
}

// SensorFault is returned when the attitude sensor reports a persistent
// failure rather than a transient one swallowed at the driver boundary.
type SensorFault struct {
	Err error
}

func (e SensorFault) Error() string { return fmt.Sprintf("autopilot: sensor fault: %v", e.Err) }
func (e SensorFault) Unwrap() error { return e.Err }
