package udpsink

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/martinmarsh/helm/internal/relay"
)

type fakeQueue struct {
	lines [][]byte
	i     int
}

func (q *fakeQueue) Get() []byte {
	if q.i >= len(q.lines) {
		return nil
	}
	line := q.lines[q.i]
	q.i++
	return line
}

type discardQueue struct{}

func (discardQueue) Put(line []byte) {}

func newTestRelay(feedKey string) *relay.Relay {
	return relay.New("udp_feed", map[string]relay.Queue{feedKey: discardQueue{}}, []string{feedKey})
}

func TestRunDisablesFeedingRelaysOnDialFailure(t *testing.T) {
	r := newTestRelay("q_udp")
	s := New("10.0.0.1:10110", &fakeQueue{}, []*relay.Relay{r}, "q_udp", 200*time.Millisecond)
	s.dial = func(network, addr string) (net.Conn, error) {
		return nil, errors.New("network unreachable")
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.Run(stop) }()

	// Let the first dial attempt fail and disable the relay, then stop
	// well before the backoff window would re-enable it.
	time.Sleep(20 * time.Millisecond)
	close(stop)

	if err := <-done; err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	if !r.IsDisabled("q_udp") {
		t.Fatal("expected feeding relay to be disabled after dial failure")
	}
}

type fakeConn struct {
	net.Conn
	written [][]byte
}

func (c *fakeConn) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	c.written = append(c.written, cp)
	return len(b), nil
}
func (c *fakeConn) Close() error { return nil }

func TestRunDrainsQueueUntilEmptyThenReturns(t *testing.T) {
	r := newTestRelay("q_udp")
	q := &fakeQueue{lines: [][]byte{[]byte("$GPRMC*00\r\n"), []byte("$GPGGA*00\r\n")}}
	conn := &fakeConn{}
	s := New("10.0.0.1:10110", q, []*relay.Relay{r}, "q_udp", time.Millisecond)
	s.dial = func(network, addr string) (net.Conn, error) {
		return conn, nil
	}

	if err := s.Run(make(chan struct{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.written) != 2 {
		t.Fatalf("expected 2 lines written to the connection, got %d", len(conn.written))
	}
}
