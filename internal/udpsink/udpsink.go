// Package udpsink forwards a queue of raw NMEA sentences to a chart
// plotter over UDP, disabling the relays that feed it while disconnected.
package udpsink

import (
	"fmt"
	"net"
	"time"

	"github.com/martinmarsh/helm/internal/relay"
)

// UdpConnectFailed reports that the chart-plotter UDP endpoint could not be
// reached. The caller disables its feeding relays and retries after a
// fixed backoff.
type UdpConnectFailed struct {
	Addr string
	Err  error
}

func (e UdpConnectFailed) Error() string {
	return fmt.Sprintf("udp connect to %s failed: %v", e.Addr, e.Err)
}
func (e UdpConnectFailed) Unwrap() error { return e.Err }

// Queue is the minimal source the sink drains, matching relay.Queue's
// production side.
type Queue interface {
	Get() []byte
}

// Sink owns one UDP destination and the relays that feed its queue.
type Sink struct {
	addr    string
	queue   Queue
	relays  []*relay.Relay
	feedKey string
	backoff time.Duration

	dial func(network, addr string) (net.Conn, error)
}

// New builds a Sink that drains queue and writes to addr, enabling feedKey
// on every relay in relays while connected and disabling it during outages.
func New(addr string, queue Queue, relays []*relay.Relay, feedKey string, backoff time.Duration) *Sink {
	return &Sink{
		addr:    addr,
		queue:   queue,
		relays:  relays,
		feedKey: feedKey,
		backoff: backoff,
		dial:    net.Dial,
	}
}

// Run drains the queue forever, reconnecting with the configured backoff on
// failure. It returns nil when stop is closed or when the queue yields nil
// (its closed-and-drained signal).
func (s *Sink) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		for _, r := range s.relays {
			r.Enable(s.feedKey)
		}

		conn, err := s.dial("udp", s.addr)
		if err != nil {
			for _, r := range s.relays {
				r.Disable(s.feedKey)
			}
			select {
			case <-stop:
				return nil
			case <-time.After(s.backoff):
				continue
			}
		}

		if connErr := s.drain(conn, stop); connErr != nil {
			conn.Close()
			for _, r := range s.relays {
				r.Disable(s.feedKey)
			}
			select {
			case <-stop:
				return nil
			case <-time.After(s.backoff):
			}
			continue
		}
		conn.Close()
		return nil
	}
}

func (s *Sink) drain(conn net.Conn, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		line := s.queue.Get()
		if line == nil {
			return nil
		}
		if _, err := conn.Write(line); err != nil {
			return UdpConnectFailed{Addr: s.addr, Err: err}
		}
	}
}
