package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// LicenseStatus represents the lifecycle state of a license.
type LicenseStatus string

const (
	// LicenseStatusActive licenses unlock paid features.
	LicenseStatusActive LicenseStatus = "active"
	// LicenseStatusRevoked licenses were invalidated by an operator or a refund.
	LicenseStatusRevoked LicenseStatus = "revoked"
	// LicenseStatusRefunded licenses were refunded through the payment provider.
	LicenseStatusRefunded LicenseStatus = "refunded"
)

// License represents an issued license record.
type License struct {
	ID            int64
	Key           string
	Email         string
	TransactionID string
	CustomerID    *string
	Status        LicenseStatus
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const licenseColumns = "id, license_key, email, transaction_id, customer_id, status, metadata, created_at, updated_at"

// scanLicense scans a license row from the given row scanner.
func scanLicense(row pgx.Row) (*License, error) {
	var lic License
	var statusStr string
	var metadata []byte

	err := row.Scan(
		&lic.ID, &lic.Key, &lic.Email, &lic.TransactionID, &lic.CustomerID,
		&statusStr, &metadata, &lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lic.Status = LicenseStatus(statusStr)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &lic.Metadata); err != nil {
			return nil, fmt.Errorf("decode license metadata: %w", err)
		}
	}
	return &lic, nil
}

// CreateLicense inserts a new license and returns the stored record.
func (db *DB) CreateLicense(ctx context.Context, key, email, transactionID string, customerID *string, metadata map[string]any) (*License, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode license metadata: %w", err)
	}

	row := db.Pool.QueryRow(ctx, `
		INSERT INTO licenses (license_key, email, transaction_id, customer_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+licenseColumns,
		key, email, transactionID, customerID, metadataJSON)

	lic, err := scanLicense(row)
	if err != nil {
		return nil, fmt.Errorf("create license: %w", err)
	}
	return lic, nil
}

// GetLicenseByKey returns the license with the given key, or nil if none exists.
func (db *DB) GetLicenseByKey(ctx context.Context, key string) (*License, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+licenseColumns+" FROM licenses WHERE license_key = $1", key)

	lic, err := scanLicense(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get license by key: %w", err)
	}
	return lic, nil
}

// GetLicenseByTransaction returns the license issued for the given provider
// transaction, or nil if none exists.
func (db *DB) GetLicenseByTransaction(ctx context.Context, transactionID string) (*License, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+licenseColumns+" FROM licenses WHERE transaction_id = $1", transactionID)

	lic, err := scanLicense(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get license by transaction: %w", err)
	}
	return lic, nil
}

// RevokeLicense moves a license into a terminal status, revoked for
// operator action or refunded for provider refunds. Revoking an unknown
// key is a silent no-op; rows are never deleted.
func (db *DB) RevokeLicense(ctx context.Context, key string, status LicenseStatus) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE licenses
		SET status = $2, updated_at = NOW()
		WHERE license_key = $1
	`, key, string(status))

	if err != nil {
		return fmt.Errorf("revoke license: %w", err)
	}
	return nil
}

// ListLicenses returns licenses ordered by creation time, newest first,
// along with the total row count.
func (db *DB) ListLicenses(ctx context.Context, limit, offset int) ([]*License, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM licenses").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT "+licenseColumns+" FROM licenses ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}

	return licenses, total, nil
}
