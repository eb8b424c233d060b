// Package serialio reads and writes NMEA-0183 lines over serial ports,
// with logical port names resolved to a device path by an external
// SerialOpener collaborator (USB descriptor matching stays out of scope).
package serialio

import (
	"bufio"
	"fmt"

	"go.bug.st/serial"
)

// SerialOpener resolves a logical port name (e.g. "compass") to an actual
// device path. The one implementation, StaticOpener, is a fixed map; it is
// used both by cmd/helm and by the tests.
type SerialOpener interface {
	Resolve(logicalName string) (devicePath string, ok bool)
}

// Port wraps an open serial.Port with line-oriented read/write, matching
// the CR-LF-terminated sentence framing NMEA-0183 uses on the wire.
type Port struct {
	name string
	port serial.Port
	r    *bufio.Reader
}

// Open resolves logicalName via opener and opens the device at baud.
func Open(opener SerialOpener, logicalName string, baud int) (*Port, error) {
	devicePath, ok := opener.Resolve(logicalName)
	if !ok {
		return nil, fmt.Errorf("serialio: no device resolved for %q", logicalName)
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s (%s): %w", logicalName, devicePath, err)
	}
	return &Port{name: logicalName, port: p, r: bufio.NewReader(p)}, nil
}

// ReadLine blocks until one CR-LF-terminated line is available. Reads are
// unbounded: hardware delivers, or the call blocks.
func (p *Port) ReadLine() ([]byte, error) {
	line, err := p.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("serialio: read %s: %w", p.name, err)
	}
	return line, nil
}

// Write writes a raw line (including its terminator) to the port.
func (p *Port) Write(line []byte) error {
	if _, err := p.port.Write(line); err != nil {
		return fmt.Errorf("serialio: write %s: %w", p.name, err)
	}
	return nil
}

// Close releases the underlying device.
func (p *Port) Close() error {
	return p.port.Close()
}

// StaticOpener is a SerialOpener backed by a fixed logical-name-to-device
// map, for configurations or test fixtures that skip USB enumeration.
type StaticOpener map[string]string

func (m StaticOpener) Resolve(logicalName string) (string, bool) {
	path, ok := m[logicalName]
	return path, ok
}
