// Package history persists the finalized dwell windows to SQLite for later analysis.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ftl/bandwatch/rx"
)

const defaultRecorderBufferSize = 256

// Store keeps the windows in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open history: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS windows (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run TEXT NOT NULL,
    recorded_at INTEGER NOT NULL,
    channel INTEGER NOT NULL,
    frames INTEGER NOT NULL,
    bytes INTEGER NOT NULL,
    strong_frames INTEGER NOT NULL,
    unique_tx INTEGER NOT NULL,
    raw REAL NOT NULL,
    smoothed REAL NOT NULL,
    dwell_ms INTEGER NOT NULL,
    elapsed_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS windows_recorded_at ON windows (recorded_at);`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one finalized window of the given run.
func (s *Store) Record(run string, timestamp time.Time, w rx.Window) error {
	_, err := s.db.Exec(`
INSERT INTO windows (
    run, recorded_at, channel, frames, bytes, strong_frames, unique_tx, raw, smoothed, dwell_ms, elapsed_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run,
		timestamp.UTC().UnixMilli(),
		w.Channel,
		w.Frames,
		w.Bytes,
		w.StrongFrames,
		w.Unique,
		w.Raw,
		w.Smoothed,
		w.Dwell.Milliseconds(),
		w.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("cannot record window: %w", err)
	}
	return nil
}

// ChannelAverage summarizes the recorded windows of one channel.
type ChannelAverage struct {
	Channel  int
	Windows  int
	Frames   float64
	Bytes    float64
	Raw      float64
	Smoothed float64
	MaxRaw   float64
}

// ChannelAverages provides the averages per channel of all windows recorded since the given time,
// ordered by channel.
func (s *Store) ChannelAverages(since time.Time) ([]ChannelAverage, error) {
	rows, err := s.db.Query(`
SELECT channel, COUNT(*), AVG(frames), AVG(bytes), AVG(raw), AVG(smoothed), MAX(raw)
FROM windows
WHERE recorded_at >= ?
GROUP BY channel
ORDER BY channel`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("cannot query channel averages: %w", err)
	}
	defer rows.Close()

	result := make([]ChannelAverage, 0, rx.DefaultChannels)
	for rows.Next() {
		var average ChannelAverage
		err := rows.Scan(&average.Channel, &average.Windows, &average.Frames, &average.Bytes, &average.Raw, &average.Smoothed, &average.MaxRaw)
		if err != nil {
			return nil, fmt.Errorf("cannot read channel averages: %w", err)
		}
		result = append(result, average)
	}
	return result, rows.Err()
}

// Prune deletes all windows recorded before the given time and returns the number of deleted windows.
func (s *Store) Prune(before time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM windows WHERE recorded_at < ?", before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cannot prune history: %w", err)
	}
	return result.RowsAffected()
}

type recordedWindow struct {
	timestamp time.Time
	window    rx.Window
}

// Recorder writes the finalized windows of one run into a store. It implements rx.Reporter.
// The windows are written on a separate goroutine, windows are dropped if the store cannot keep up.
type Recorder struct {
	rx.NullReporter

	store   *Store
	runID   string
	now     func() time.Time
	windows chan recordedWindow
	dropped atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func NewRecorder(store *Store) *Recorder {
	result := &Recorder{
		store:   store,
		runID:   uuid.NewString(),
		now:     time.Now,
		windows: make(chan recordedWindow, defaultRecorderBufferSize),
		closed:  make(chan struct{}),
	}

	go result.run()

	return result
}

func (r *Recorder) run() {
	defer close(r.closed)
	for w := range r.windows {
		err := r.store.Record(r.runID, w.timestamp, w.window)
		if err != nil {
			log.Print(err)
		}
	}
}

// Run is the ID of the run recorded by this recorder.
func (r *Recorder) Run() string {
	return r.runID
}

func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) WindowFinalized(w rx.Window) {
	select {
	case r.windows <- recordedWindow{timestamp: r.now(), window: w}:
	default:
		r.dropped.Add(1)
	}
}

// Close waits until all pending windows are written. The store stays open.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.windows)
	})
	<-r.closed
}
