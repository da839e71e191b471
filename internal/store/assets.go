package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pointsource/checkit/internal/model"
)

// CreateAsset inserts a new asset with status 'available'.
func CreateAsset(ctx context.Context, db *sql.DB, a *model.Asset) (*model.Asset, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO assets (name, description, category, os, location, attributes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.Name, a.Description, a.Category, a.OS, a.Location, a.Attributes,
	)
	if err != nil {
		return nil, fmt.Errorf("creating asset: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting asset id: %w", err)
	}

	return GetAsset(ctx, db, id)
}

// GetAsset returns an asset by ID, or nil if it does not exist.
func GetAsset(ctx context.Context, db *sql.DB, id int64) (*model.Asset, error) {
	a := &model.Asset{}
	var description, os, location, attributes, imageMime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, description, category, os, location, attributes, image_mime, status, created_at, updated_at
		 FROM assets WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &description, &a.Category, &os, &location, &attributes, &imageMime,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	a.Description = description.String
	a.OS = os.String
	a.Location = location.String
	a.Attributes = attributes.String
	a.ImageMime = imageMime.String
	return a, nil
}

// ListAssets returns all non-retired assets, optionally filtered by category,
// ordered by name.
func ListAssets(ctx context.Context, db *sql.DB, category string) ([]model.Asset, error) {
	query := `SELECT id, name, description, category, os, location, attributes, image_mime, status, created_at, updated_at
	          FROM assets WHERE status != ?`
	args := []any{model.StatusRetired}

	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}

	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

func scanAssets(rows *sql.Rows) ([]model.Asset, error) {
	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		var description, os, location, attributes, imageMime sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &description, &a.Category, &os, &location, &attributes,
			&imageMime, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		a.Description = description.String
		a.OS = os.String
		a.Location = location.String
		a.Attributes = attributes.String
		a.ImageMime = imageMime.String
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// UpdateAssetStatus updates the cached status field. The caller must hold
// the lifecycle lock; the ledger remains the source of truth.
func UpdateAssetStatus(ctx context.Context, db *sql.DB, id int64, status string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE assets SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating asset status: %w", err)
	}
	return nil
}

// AssetPatch holds optional field updates for an asset. Nil fields are left
// unchanged. Status is deliberately absent: status only moves through the
// lifecycle operations.
type AssetPatch struct {
	Name        *string
	Description *string
	Category    *string
	OS          *string
	Location    *string
	Attributes  *string
}

// PatchAsset applies a partial update to an asset's descriptive fields.
func PatchAsset(ctx context.Context, db *sql.DB, id int64, patch AssetPatch) error {
	query := `UPDATE assets SET updated_at = CURRENT_TIMESTAMP`
	var args []any

	set := func(column string, value *string) {
		if value != nil {
			query += `, ` + column + ` = ?`
			args = append(args, *value)
		}
	}
	set("name", patch.Name)
	set("description", patch.Description)
	set("category", patch.Category)
	set("os", patch.OS)
	set("location", patch.Location)
	set("attributes", patch.Attributes)

	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("patching asset: %w", err)
	}
	return nil
}

// SetAssetImage stores an asset's photo.
func SetAssetImage(ctx context.Context, db *sql.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE assets SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting asset image: %w", err)
	}
	return nil
}

// GetAssetImage returns an asset's photo data and MIME type.
func GetAssetImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM assets WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting asset image: %w", err)
	}
	return image, mime.String, nil
}

// AssetsByIDs returns a map of asset ID to asset for the given set of IDs.
func AssetsByIDs(ctx context.Context, db *sql.DB, ids []int64) (map[int64]model.Asset, error) {
	assets := make(map[int64]model.Asset)
	if len(ids) == 0 {
		return assets, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, name, description, category, os, location, attributes, image_mime, status, created_at, updated_at
		 FROM assets WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing assets by ids: %w", err)
	}
	defer rows.Close()

	list, err := scanAssets(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		assets[a.ID] = a
	}
	return assets, nil
}
