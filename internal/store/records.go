package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pointsource/checkit/internal/model"
)

// AppendRecord inserts a new ledger record. Records are immutable: this is
// the only write path for the records table.
func AppendRecord(ctx context.Context, db *sql.DB, r *model.Record) (*model.Record, error) {
	if r.AssetID == 0 {
		return nil, fmt.Errorf("appending record: asset id required")
	}
	if r.UserID == 0 {
		return nil, fmt.Errorf("appending record: user id required")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO records (asset_id, user_id, admin_id, type, return_date)
		 VALUES (?, ?, ?, ?, ?)`,
		r.AssetID, r.UserID, r.AdminID, r.Type, r.ReturnDate,
	)
	if err != nil {
		return nil, fmt.Errorf("appending record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting record id: %w", err)
	}

	return GetRecord(ctx, db, id)
}

// GetRecord returns a record by ID, or nil if it does not exist.
func GetRecord(ctx context.Context, db *sql.DB, id int64) (*model.Record, error) {
	r := &model.Record{}
	err := db.QueryRowContext(ctx,
		`SELECT id, asset_id, user_id, admin_id, type, return_date, created
		 FROM records WHERE id = ?`, id,
	).Scan(&r.ID, &r.AssetID, &r.UserID, &r.AdminID, &r.Type, &r.ReturnDate, &r.Created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return r, nil
}

// RecordsByAsset returns all records for an asset ordered by creation time
// ascending. An asset with no records yields an empty slice, not an error.
func RecordsByAsset(ctx context.Context, db *sql.DB, assetID int64) ([]model.Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, asset_id, user_id, admin_id, type, return_date, created
		 FROM records WHERE asset_id = ? ORDER BY created, id`, assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing records for asset: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RecordsByAssets returns records for a set of assets, ordered by asset then
// creation time ascending.
func RecordsByAssets(ctx context.Context, db *sql.DB, assetIDs []int64) ([]model.Record, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(assetIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(assetIDs))
	for i, id := range assetIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, asset_id, user_id, admin_id, type, return_date, created
		 FROM records WHERE asset_id IN (`+placeholders+`) ORDER BY asset_id, created, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing records for assets: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RecordsByUser returns a user's lifecycle records (checkout, checkin,
// reservation types) ordered by creation time ascending.
func RecordsByUser(ctx context.Context, db *sql.DB, userID int64) ([]model.Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, asset_id, user_id, admin_id, type, return_date, created
		 FROM records WHERE user_id = ? AND type IN (?, ?, ?)
		 ORDER BY created, id`,
		userID, model.RecordCheckedOut, model.RecordCheckedIn, model.RecordReserved,
	)
	if err != nil {
		return nil, fmt.Errorf("listing records for user: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	var records []model.Record
	for rows.Next() {
		var r model.Record
		if err := rows.Scan(&r.ID, &r.AssetID, &r.UserID, &r.AdminID, &r.Type, &r.ReturnDate, &r.Created); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
