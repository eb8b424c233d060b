// Package journal implements the on-disk boat-data log: a monotonically
// numbered logv2_<N>.txt file per run, comma-newline-joined JSON records,
// a full snapshot every tenth record, and a latest.txt pointer to the next
// file number.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	snapshotEvery = 10
	deltaInterval = 6 * time.Second
)

// Writer owns one run's log file and the latest.txt sequence pointer. It is
// not safe for concurrent use; one task owns it.
type Writer struct {
	fs      afero.Fs
	dir     string
	fileID  int
	lines   []string
	count   int
	start   time.Time
	now     func() time.Time
	lastSet map[string]string
}

// New takes this run's log file number from latest.txt (1 if absent),
// stores the following number back for the next run, and returns a Writer
// ready to append delta records.
func New(fs afero.Fs, dir string) (*Writer, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("journal: create log directory: %w", err)
	}

	latestPath := dir + "/latest.txt"
	id := 1
	if data, err := afero.ReadFile(fs, latestPath); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil {
			id = n
		}
	}
	if err := afero.WriteFile(fs, latestPath, []byte(strconv.Itoa(id+1)), 0644); err != nil {
		return nil, fmt.Errorf("journal: write latest.txt: %w", err)
	}

	return &Writer{
		fs:      fs,
		dir:     dir,
		fileID:  id,
		now:     time.Now,
		start:   time.Now(),
		lastSet: make(map[string]string),
	}, nil
}

// Seed primes the writer with an initial full snapshot line, mirroring the
// state captured at the moment the run's log file was allocated.
func (w *Writer) Seed(snapshot map[string]string) error {
	full, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("journal: marshal seed snapshot: %w", err)
	}
	w.lines = []string{string(full)}
	w.lastSet = snapshot
	return nil
}

// path returns this run's log file path.
func (w *Writer) path() string {
	return fmt.Sprintf("%s/logv2_%d.txt", w.dir, w.fileID)
}

// Record appends one delta record comparing snapshot against the last
// recorded values, emitting only changed keys plus {count, lapse}. Every
// tenth call additionally appends the accumulated records to the log file,
// starts the next batch with a full snapshot, and resets the heal/pitch
// extremes in the caller-owned state (via resetExtremes).
func (w *Writer) Record(snapshot map[string]string, resetExtremes func()) error {
	w.count++

	delta := map[string]string{}
	for k, v := range snapshot {
		if w.lastSet[k] != v {
			delta[k] = v
		}
	}
	w.lastSet = snapshot

	record := map[string]interface{}{
		"count": w.count,
		"lapse": round1(w.now().Sub(w.start).Seconds()),
	}
	for k, v := range delta {
		record[k] = v
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("journal: marshal delta record: %w", err)
	}
	w.lines = append(w.lines, string(line))

	if w.count%snapshotEvery == 0 {
		full, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("journal: marshal snapshot record: %w", err)
		}
		if err := w.flush(); err != nil {
			return err
		}
		w.lines = []string{string(full)}
		if resetExtremes != nil {
			resetExtremes()
		}
	}

	return nil
}

func (w *Writer) flush() error {
	content := strings.Join(w.lines, ",\n")
	f, err := w.fs.OpenFile(w.path(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("journal: open log file: %w", err)
	}
	defer f.Close()
	if info, statErr := f.Stat(); statErr == nil && info.Size() > 0 {
		content = ",\n" + content
	}
	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("journal: write log file: %w", err)
	}
	return nil
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
