package boatstate

import (
	"sync"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New()
	s.Set(KeyCompass, Float(123.4))
	v, ok := s.Get(KeyCompass)
	if !ok {
		t.Fatal("expected compass to be present")
	}
	if v.Kind != KindFloat || v.Float != 123.4 {
		t.Fatalf("got %+v", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := New()
	_, ok := s.Get(KeyHTS)
	if ok {
		t.Fatal("expected missing key to report not-ok")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.Set(KeyGain, Int(325))
	s.Delete(KeyGain)
	if _, ok := s.Get(KeyGain); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestLastWriterWins(t *testing.T) {
	s := New()
	s.Set(KeyTSF, Int(1))
	s.Set(KeyTSF, Int(2))
	v, _ := s.Get(KeyTSF)
	if v.Int != 2 {
		t.Fatalf("expected last write to win, got %d", v.Int)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := New()
	s.Set(KeyRudder, Float(1.0))
	snap := s.Snapshot()
	s.Set(KeyRudder, Float(2.0))
	if snap[KeyRudder].Float != 1.0 {
		t.Fatal("snapshot should not be affected by later writes")
	}
}

func TestConcurrentSetGet(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			s.Set(KeyPower, Int(n))
		}(int64(i))
		go func() {
			defer wg.Done()
			s.Get(KeyPower)
		}()
	}
	wg.Wait()
}
