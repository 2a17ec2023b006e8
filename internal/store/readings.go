package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/co2mon/internal/logic"
)

// Reading is one logged sample.
type Reading struct {
	ID          string
	TakenAt     time.Time
	Co2         int
	Temperature int
	RelHumidity int
	FanState    logic.FanState
}

// ReadingsFile is the reading log's file name under the log directory.
const ReadingsFile = "readings.db"

// ReadingLog is the on-disk history of samples.
type ReadingLog struct {
	db    *sql.DB
	owned bool
}

func NewReadingLog(db *sql.DB) *ReadingLog { return &ReadingLog{db: db} }

// OpenReadingLog opens dir/readings.db. The returned log owns the database
// and closes it on Close.
func OpenReadingLog(dir string) (*ReadingLog, error) {
	db, err := InitDB(filepath.Join(dir, ReadingsFile))
	if err != nil {
		return nil, err
	}
	return &ReadingLog{db: db, owned: true}, nil
}

// Close releases the database if the log opened it.
func (l *ReadingLog) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

// Append inserts r. A missing ID or timestamp is filled in.
func (l *ReadingLog) Append(ctx context.Context, r Reading) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TakenAt.IsZero() {
		r.TakenAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO readings (id, taken_at, co2, temperature, rel_humidity, fan_state)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.TakenAt.Unix(), r.Co2, r.Temperature, r.RelHumidity, r.FanState.String())
	return err
}

// Recent returns up to limit readings, newest first.
func (l *ReadingLog) Recent(ctx context.Context, limit int) ([]Reading, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, taken_at, co2, temperature, rel_humidity, fan_state
		FROM readings ORDER BY taken_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Reading, 0, limit)
	for rows.Next() {
		var r Reading
		var takenAt int64
		var fanState string
		if err := rows.Scan(&r.ID, &takenAt, &r.Co2, &r.Temperature, &r.RelHumidity, &fanState); err != nil {
			return nil, err
		}
		r.TakenAt = time.Unix(takenAt, 0).UTC()
		r.FanState = parseFanState(fanState)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes readings taken before cutoff and returns how many went.
func (l *ReadingLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM readings WHERE taken_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func parseFanState(s string) logic.FanState {
	for st := logic.AutoOff; st <= logic.ManualOnState; st++ {
		if st.String() == s {
			return st
		}
	}
	return logic.AutoOff
}
