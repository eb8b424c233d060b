package nmea

import "github.com/martinmarsh/helm/internal/boatstate"

// StateSink adapts a boatstate.State to the Sink interface Decode writes
// through, translating decoded Values into the closed Scalar type.
type StateSink struct {
	State *boatstate.State
}

func (s StateSink) MergeValue(name string, v Value) {
	s.State.Set(boatstate.Key(name), toScalar(v))
}

func (s StateSink) Delete(name string) {
	s.State.Delete(boatstate.Key(name))
}

func toScalar(v Value) boatstate.Scalar {
	switch {
	case v.IsString():
		return boatstate.Text(v.Str)
	case v.IsInt():
		return boatstate.Int(v.Int)
	default:
		return boatstate.Float(v.Float)
	}
}
