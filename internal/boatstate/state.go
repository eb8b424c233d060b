// Package boatstate implements the process-wide named scalar store that the
// decoder writes to and the autopilot reads from. It is the only
// intentionally shared mutable object in the program.
package boatstate

import "sync"

// Kind tags which variant of Scalar is populated.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

// Scalar is a closed sum type: exactly one of Int/Float/Text is meaningful,
// selected by Kind. Modelling BoatState's loose Python typing as a Go
// interface{} would let a typo'd type assertion panic at 2am on a boat;
// with a tagged struct there is no assertion, and reading a field that Kind
// does not select yields that field's zero value.
type Scalar struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
}

func Int(v int64) Scalar   { return Scalar{Kind: KindInt, Int: v} }
func Float(v float64) Scalar { return Scalar{Kind: KindFloat, Float: v} }
func Text(v string) Scalar { return Scalar{Kind: KindText, Text: v} }

// Key names a BoatState entry; the constants below are the keys the program
// uses. Key is a string type, so an untyped string literal (or a converted
// decoder variable name) is accepted as well; the set is not enforced.
type Key string

const (
	KeyCompass     Key = "compass"
	KeyCompassCal  Key = "compass_cal"
	KeyCompassMode Key = "compass_mode"
	KeyHeadDiff    Key = "head_diff"
	KeyMaxHeal     Key = "max_heal"
	KeyMinHeal     Key = "min_heal"
	KeyMaxPitch    Key = "max_pitch"
	KeyMinPitch    Key = "min_pitch"
	KeyHTS         Key = "hts"
	KeyMagVar      Key = "mag_var"
	KeyHDM         Key = "HDM"
	KeyAutoHelm    Key = "auto_helm"
	KeyGain        Key = "gain"
	KeyTSF         Key = "tsf"
	KeyBaseDuty    Key = "base_duty"
	KeyPower       Key = "power"
	KeyRudder      Key = "rudder"

	// Decoder-origin keys not enumerated in the core data model table but
	// produced by the recognised NMEA sentences (§4.C) and carried through
	// unchanged.
	KeyTime       Key = "time"
	KeyDate       Key = "date"
	KeyStatus     Key = "status"
	KeyLat        Key = "lat"
	KeyLong       Key = "long"
	KeySOG        Key = "SOG"
	KeyTMG        Key = "TMG"
	KeyXTE        Key = "XTE"
	KeyXTEUnits   Key = "XTE_units"
	KeyACir       Key = "ACir"
	KeyAPer       Key = "APer"
	KeyBOD        Key = "BOD"
	KeyDid        Key = "Did"
	KeyBPD        Key = "BPD"
	KeyHTSField   Key = "HTS"
	KeyDBT        Key = "DBT"
	KeyTOFF       Key = "TOFF"
	KeySTW        Key = "STW"
	KeyDW         Key = "DW"
	KeyDatetime   Key = "datetime"
)

// State is a named scalar store safe for concurrent get/set/delete. Writes
// to a given key are linearisable; there is no ordering guarantee across
// different keys.
type State struct {
	mu   sync.RWMutex
	data map[Key]Scalar
}

func New() *State {
	return &State{data: make(map[Key]Scalar)}
}

// Get returns the stored scalar and true, or the zero Scalar and false if
// the key is absent.
func (s *State) Get(key Key) (Scalar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *State) Set(key Key, value Scalar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *State) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Snapshot returns a shallow copy of the entire store, for the telemetry
// mirror and the log writer. The copy is taken under the read lock so it
// reflects one consistent instant even though individual keys are written
// independently.
func (s *State) Snapshot() map[Key]Scalar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]Scalar, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
