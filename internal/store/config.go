package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// Keys in fan_settings. Humidity is stored in whole percent, as on the wire.
const (
	keyRelHumThreshold = "rel_hum_fan_on_threshold"
	keyCo2Threshold    = "co2_fan_on_threshold"
	keyFanOverride     = "fan_override"
)

// ConfigStore keeps the operator's fan settings across restarts.
type ConfigStore struct {
	db *sql.DB
}

func NewConfigStore(db *sql.DB) *ConfigStore { return &ConfigStore{db: db} }

// Load returns the persisted settings. Keys never saved are left nil.
func (s *ConfigStore) Load(ctx context.Context) (message.FanConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM fan_settings`)
	if err != nil {
		return message.FanConfig{}, err
	}
	defer rows.Close()

	var fc message.FanConfig
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return message.FanConfig{}, err
		}
		switch key {
		case keyRelHumThreshold, keyCo2Threshold:
			n, err := strconv.Atoi(value)
			if err != nil {
				return message.FanConfig{}, fmt.Errorf("fan setting %s: %w", key, err)
			}
			if key == keyRelHumThreshold {
				fc.RelHumFanOnThreshold = message.Int32(int32(n))
			} else {
				fc.Co2FanOnThreshold = message.Int32(int32(n))
			}
		case keyFanOverride:
			m, err := logic.ParseOverrideMode(value)
			if err != nil {
				return message.FanConfig{}, fmt.Errorf("fan setting %s: %w", key, err)
			}
			fc.FanOverride = message.Override(m)
		}
	}
	if err := rows.Err(); err != nil {
		return message.FanConfig{}, err
	}
	return fc, nil
}

// Save stores the present fields of fc in one transaction.
func (s *ConfigStore) Save(ctx context.Context, fc message.FanConfig) error {
	kv := map[string]string{}
	if fc.RelHumFanOnThreshold != nil {
		kv[keyRelHumThreshold] = strconv.Itoa(int(*fc.RelHumFanOnThreshold))
	}
	if fc.Co2FanOnThreshold != nil {
		kv[keyCo2Threshold] = strconv.Itoa(int(*fc.Co2FanOnThreshold))
	}
	if fc.FanOverride != nil {
		kv[keyFanOverride] = strings.ToLower(fc.FanOverride.String())
	}
	if len(kv) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range []string{keyRelHumThreshold, keyCo2Threshold, keyFanOverride} {
		value, ok := kv[key]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fan_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return tx.Commit()
}
