package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
	"github.com/sweeney/co2mon/internal/restart"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// argFunc adapts a predicate to sqlmock.Argument.
type argFunc func(driver.Value) bool

func (f argFunc) Match(v driver.Value) bool { return f(v) }

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestRestartStoreWrite(t *testing.T) {
	db, mock := newMock(t)
	s := NewRestartStore(db)

	reason := restart.RebootUserReq
	reboots := 2
	rec := restart.Record{
		Reason:           &reason,
		UpdatedAt:        t0,
		RebootsAfterFail: &reboots,
		Readings:         &restart.Readings{Temperature: 2150, Co2: 640, RelHumidity: 4800},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO restart_record")).
		WithArgs(1, "REBOOT_USER_REQ", t0.Unix(), int64(2), int64(2150), int64(640), int64(4800)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRestartStoreWriteUnsetFieldsAreNull(t *testing.T) {
	db, mock := newMock(t)
	s := NewRestartStore(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO restart_record")).
		WithArgs(1, nil, t0.Unix(), nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Write(context.Background(), restart.Record{UpdatedAt: t0}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRestartStoreReadEmpty(t *testing.T) {
	db, mock := newMock(t)
	s := NewRestartStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM restart_record")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"restart_reason", "updated_at", "reboots_after_fail", "temperature", "co2", "rel_humidity"}))

	rec, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if rec.Reason != nil || rec.RebootsAfterFail != nil || rec.Readings != nil {
		t.Errorf("rec = %+v, want empty", rec)
	}
}

func TestRestartStoreReadRow(t *testing.T) {
	db, mock := newMock(t)
	s := NewRestartStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM restart_record")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"restart_reason", "updated_at", "reboots_after_fail", "temperature", "co2", "rel_humidity"}).
			AddRow("CRASH", t0.Unix(), int64(1), nil, nil, nil))

	rec, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if rec.ReasonOrCrash() != restart.Crash || rec.Reboots() != 1 {
		t.Errorf("rec = %+v", rec)
	}
	if !rec.UpdatedAt.Equal(t0) {
		t.Errorf("updated = %v", rec.UpdatedAt)
	}
	if rec.Readings != nil {
		t.Error("null readings should stay unset")
	}
}

func TestConfigStoreSavePartial(t *testing.T) {
	db, mock := newMock(t)
	s := NewConfigStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fan_settings")).
		WithArgs(keyFanOverride, "manual_on").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	fc := message.FanConfig{FanOverride: message.Override(logic.ManualOn)}
	if err := s.Save(context.Background(), fc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConfigStoreSaveNothing(t *testing.T) {
	db, mock := newMock(t)
	s := NewConfigStore(db)

	if err := s.Save(context.Background(), message.FanConfig{}); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConfigStoreLoad(t *testing.T) {
	db, mock := newMock(t)
	s := NewConfigStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value FROM fan_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow(keyRelHumThreshold, "65").
			AddRow(keyFanOverride, "MANUAL_OFF").
			AddRow("unrelated", "x"))

	fc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fc.RelHumFanOnThreshold == nil || *fc.RelHumFanOnThreshold != 65 {
		t.Errorf("rh threshold = %v", fc.RelHumFanOnThreshold)
	}
	if fc.Co2FanOnThreshold != nil {
		t.Error("co2 threshold should be unset")
	}
	if fc.FanOverride == nil || *fc.FanOverride != logic.ManualOff {
		t.Errorf("override = %v", fc.FanOverride)
	}
}

func TestConfigStoreLoadBadValue(t *testing.T) {
	db, mock := newMock(t)
	s := NewConfigStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fan_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).AddRow(keyCo2Threshold, "lots"))

	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestReadingLogAppendGeneratesID(t *testing.T) {
	db, mock := newMock(t)
	l := NewReadingLog(db)

	isUUID := argFunc(func(v driver.Value) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := uuid.Parse(s)
		return err == nil
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO readings")).
		WithArgs(isUUID, t0.Unix(), 850, 2150, 4550, "AUTO_ON").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := l.Append(context.Background(), Reading{TakenAt: t0, Co2: 850, Temperature: 2150, RelHumidity: 4550, FanState: logic.AutoOn})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReadingLogPrune(t *testing.T) {
	db, mock := newMock(t)
	l := NewReadingLog(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM readings WHERE taken_at < ?")).
		WithArgs(t0.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := l.Prune(context.Background(), t0)
	if err != nil || n != 7 {
		t.Errorf("Prune() = %d, %v", n, err)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	rs := NewRestartStore(db)
	reason := restart.Reboot
	reboots := 3
	want := restart.Record{
		Reason:           &reason,
		UpdatedAt:        t0,
		RebootsAfterFail: &reboots,
		Readings:         &restart.Readings{Temperature: -150, Co2: 900, RelHumidity: 5500},
	}
	if err := rs.Write(ctx, want); err != nil {
		t.Fatal(err)
	}
	if err := rs.Write(ctx, want); err != nil {
		t.Fatalf("second write should upsert: %v", err)
	}
	got, err := rs.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReasonOrCrash() != restart.Reboot || got.Reboots() != 3 || *got.Readings != *want.Readings || !got.UpdatedAt.Equal(t0) {
		t.Errorf("restart record = %+v", got)
	}

	cs := NewConfigStore(db)
	if err := cs.Save(ctx, message.FanConfig{Co2FanOnThreshold: message.Int32(1100)}); err != nil {
		t.Fatal(err)
	}
	if err := cs.Save(ctx, message.FanConfig{Co2FanOnThreshold: message.Int32(1200), FanOverride: message.Override(logic.Auto)}); err != nil {
		t.Fatal(err)
	}
	fc, err := cs.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if *fc.Co2FanOnThreshold != 1200 || *fc.FanOverride != logic.Auto || fc.RelHumFanOnThreshold != nil {
		t.Errorf("fan config = %s", message.NewFanConfig(fc))
	}

	rl := NewReadingLog(db)
	for i := 0; i < 3; i++ {
		r := Reading{TakenAt: t0.Add(time.Duration(i) * time.Minute), Co2: 500 + i, Temperature: 2000, RelHumidity: 4000, FanState: logic.ManualOnState}
		if err := rl.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	n, err := rl.Prune(ctx, t0.Add(time.Minute))
	if err != nil || n != 1 {
		t.Errorf("Prune = %d, %v", n, err)
	}
	recent, err := rl.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Co2 != 502 || recent[0].FanState != logic.ManualOnState {
		t.Errorf("recent = %+v", recent)
	}
}

func TestOpenReadingLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	l, err := OpenReadingLog(dir)
	if err != nil {
		t.Fatalf("OpenReadingLog: %v", err)
	}
	if err := l.Append(context.Background(), Reading{Co2: 420}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = OpenReadingLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	recent, err := l.Recent(context.Background(), 5)
	if err != nil || len(recent) != 1 || recent[0].Co2 != 420 {
		t.Errorf("recent = %+v, %v", recent, err)
	}
}
