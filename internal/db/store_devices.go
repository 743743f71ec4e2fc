package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrDeviceLimitReached indicates a license already has the maximum number of
// concurrently active devices.
var ErrDeviceLimitReached = errors.New("device limit reached")

// DeviceActivation represents a (license, device) activation record.
type DeviceActivation struct {
	ID                int64
	LicenseID         int64
	DeviceFingerprint string
	DeviceName        *string
	DeviceInfo        map[string]any
	ActivatedAt       time.Time
	LastSeenAt        time.Time
	RevokedAt         *time.Time
}

const deviceColumns = "id, license_id, device_fingerprint, device_name, device_info, activated_at, last_seen_at, revoked_at"

func scanDeviceActivation(row pgx.Row) (*DeviceActivation, error) {
	var act DeviceActivation
	var info []byte

	err := row.Scan(
		&act.ID, &act.LicenseID, &act.DeviceFingerprint, &act.DeviceName,
		&info, &act.ActivatedAt, &act.LastSeenAt, &act.RevokedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(info) > 0 {
		if err := json.Unmarshal(info, &act.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decode device info: %w", err)
		}
	}
	return &act, nil
}

// ActivateDevice records a device activation for a license, enforcing the
// device limit. The admit-or-reject decision and the insert happen in a single
// transaction holding a row lock on the license, so two concurrent activations
// cannot both slip under the limit.
//
// If a live activation already exists for the fingerprint, its last_seen_at is
// refreshed without re-checking the limit (a counted device stays counted).
// Returns the activation, whether a new row was created, and the live device
// count after the call. Returns ErrDeviceLimitReached when at capacity.
func (db *DB) ActivateDevice(ctx context.Context, licenseID int64, fingerprint string, name *string, info map[string]any, maxDevices int) (*DeviceActivation, bool, int, error) {
	var activation *DeviceActivation
	var created bool
	var liveCount int

	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		// Serialize concurrent activations against the same license.
		var lockedID int64
		err := tx.QueryRow(ctx,
			"SELECT id FROM licenses WHERE id = $1 FOR UPDATE", licenseID,
		).Scan(&lockedID)
		if err != nil {
			return fmt.Errorf("lock license row: %w", err)
		}

		row := tx.QueryRow(ctx, `
			UPDATE device_activations
			SET last_seen_at = NOW()
			WHERE license_id = $1 AND device_fingerprint = $2 AND revoked_at IS NULL
			RETURNING `+deviceColumns,
			licenseID, fingerprint)

		existing, err := scanDeviceActivation(row)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("refresh device activation: %w", err)
		}

		if existing != nil {
			activation = existing
			if err := tx.QueryRow(ctx,
				"SELECT COUNT(*) FROM device_activations WHERE license_id = $1 AND revoked_at IS NULL",
				licenseID,
			).Scan(&liveCount); err != nil {
				return fmt.Errorf("count live devices: %w", err)
			}
			return nil
		}

		if err := tx.QueryRow(ctx,
			"SELECT COUNT(*) FROM device_activations WHERE license_id = $1 AND revoked_at IS NULL",
			licenseID,
		).Scan(&liveCount); err != nil {
			return fmt.Errorf("count live devices: %w", err)
		}

		if liveCount >= maxDevices {
			return ErrDeviceLimitReached
		}

		if info == nil {
			info = map[string]any{}
		}
		infoJSON, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("encode device info: %w", err)
		}

		row = tx.QueryRow(ctx, `
			INSERT INTO device_activations (license_id, device_fingerprint, device_name, device_info)
			VALUES ($1, $2, $3, $4)
			RETURNING `+deviceColumns,
			licenseID, fingerprint, name, infoJSON)

		inserted, err := scanDeviceActivation(row)
		if err != nil {
			return fmt.Errorf("create device activation: %w", err)
		}

		activation = inserted
		created = true
		liveCount++
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDeviceLimitReached) {
			return nil, false, liveCount, ErrDeviceLimitReached
		}
		return nil, false, 0, err
	}

	return activation, created, liveCount, nil
}

// FindDeviceActivation returns the live activation for a (license, fingerprint)
// pair, or nil if none exists.
func (db *DB) FindDeviceActivation(ctx context.Context, licenseID int64, fingerprint string) (*DeviceActivation, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM device_activations
		WHERE license_id = $1 AND device_fingerprint = $2 AND revoked_at IS NULL
	`, licenseID, fingerprint)

	act, err := scanDeviceActivation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find device activation: %w", err)
	}
	return act, nil
}

// CountActiveDevices returns the number of live activations for a license.
func (db *DB) CountActiveDevices(ctx context.Context, licenseID int64) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM device_activations WHERE license_id = $1 AND revoked_at IS NULL",
		licenseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active devices: %w", err)
	}
	return count, nil
}

// ListActiveDevices returns the live activations for a license, most recently
// seen first.
func (db *DB) ListActiveDevices(ctx context.Context, licenseID int64) ([]*DeviceActivation, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM device_activations
		WHERE license_id = $1 AND revoked_at IS NULL
		ORDER BY last_seen_at DESC
	`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}
	defer rows.Close()

	var activations []*DeviceActivation
	for rows.Next() {
		act, err := scanDeviceActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device activation: %w", err)
		}
		activations = append(activations, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}

	return activations, nil
}

// DeactivateDevice soft-deletes an activation by setting revoked_at. The row
// is kept for audit history. Deactivating an unknown id is a silent no-op.
func (db *DB) DeactivateDevice(ctx context.Context, id int64) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE device_activations
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)

	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	return nil
}
