package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sweeney/co2mon/internal/restart"
)

const (
	restartRowID = 1

	upsertRestartSQL = `
		INSERT INTO restart_record (id, restart_reason, updated_at, reboots_after_fail, temperature, co2, rel_humidity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			restart_reason=excluded.restart_reason,
			updated_at=excluded.updated_at,
			reboots_after_fail=excluded.reboots_after_fail,
			temperature=excluded.temperature,
			co2=excluded.co2,
			rel_humidity=excluded.rel_humidity
	`

	selectRestartSQL = `
		SELECT restart_reason, updated_at, reboots_after_fail, temperature, co2, rel_humidity
		FROM restart_record WHERE id=?
	`
)

// RestartStore keeps the single restart record row.
type RestartStore struct {
	db *sql.DB
}

func NewRestartStore(db *sql.DB) *RestartStore { return &RestartStore{db: db} }

// Read returns the stored record, or an empty one if none was written yet.
func (s *RestartStore) Read(ctx context.Context) (restart.Record, error) {
	var (
		reason                 sql.NullString
		updated                int64
		reboots                sql.NullInt64
		temp, co2, relHumidity sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, selectRestartSQL, restartRowID).
		Scan(&reason, &updated, &reboots, &temp, &co2, &relHumidity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return restart.Record{}, nil
		}
		return restart.Record{}, err
	}

	var rec restart.Record
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	if reason.Valid {
		r := restart.ParseReason(reason.String)
		rec.Reason = &r
	}
	if reboots.Valid {
		n := int(reboots.Int64)
		rec.RebootsAfterFail = &n
	}
	if temp.Valid && co2.Valid && relHumidity.Valid {
		rec.Readings = &restart.Readings{
			Temperature: int(temp.Int64),
			Co2:         int(co2.Int64),
			RelHumidity: int(relHumidity.Int64),
		}
	}
	return rec, nil
}

// Write replaces the stored record. Nil fields are stored as NULL.
func (s *RestartStore) Write(ctx context.Context, rec restart.Record) error {
	var reason, reboots, temp, co2, relHumidity any
	if rec.Reason != nil {
		reason = rec.Reason.String()
	}
	if rec.RebootsAfterFail != nil {
		reboots = int64(*rec.RebootsAfterFail)
	}
	if rec.Readings != nil {
		temp = int64(rec.Readings.Temperature)
		co2 = int64(rec.Readings.Co2)
		relHumidity = int64(rec.Readings.RelHumidity)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.ExecContext(ctx, upsertRestartSQL,
		restartRowID, reason, updated.Unix(), reboots, temp, co2, relHumidity)
	return err
}
