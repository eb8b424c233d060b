package serialio

import "testing"

func TestStaticOpenerResolvesKnownName(t *testing.T) {
	m := StaticOpener{"compass": "/dev/ttyUSB0"}
	path, ok := m.Resolve("compass")
	if !ok || path != "/dev/ttyUSB0" {
		t.Fatalf("expected resolved path, got %q ok=%v", path, ok)
	}
}

func TestStaticOpenerUnknownNameNotOK(t *testing.T) {
	m := StaticOpener{"compass": "/dev/ttyUSB0"}
	_, ok := m.Resolve("gps")
	if ok {
		t.Fatal("expected unknown logical name to resolve not-ok")
	}
}

func TestOpenReturnsErrorForUnresolvedPort(t *testing.T) {
	m := StaticOpener{}
	_, err := Open(m, "gps", 4800)
	if err == nil {
		t.Fatal("expected an error opening an unresolved logical port")
	}
}
