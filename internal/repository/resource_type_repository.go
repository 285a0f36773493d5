package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/resource-booking/internal/model"
)

// ResourceTypeRepo provides CRUD over resource_types.  Type names are
// unique; a duplicate insert or rename yields ErrConflict.
type ResourceTypeRepo struct {
	db *sql.DB
}

// NewResourceTypeRepo returns a ResourceTypeRepo bound to db.
func NewResourceTypeRepo(db *sql.DB) *ResourceTypeRepo { return &ResourceTypeRepo{db: db} }

// Create inserts t and populates its ID.
func (r *ResourceTypeRepo) Create(ctx context.Context, t *model.ResourceType) error {
	return r.CreateTx(ctx, r.db, t)
}

// CreateTx inserts t using the supplied handle.
func (r *ResourceTypeRepo) CreateTx(ctx context.Context, tx dbtx, t *model.ResourceType) error {
	t.TypeName = strings.TrimSpace(t.TypeName)
	res, err := tx.ExecContext(ctx, `INSERT INTO resource_types (type_name) VALUES (?)`, t.TypeName)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByID returns a single type or ErrResourceTypeNotFound.
func (r *ResourceTypeRepo) GetByID(ctx context.Context, id uint64) (model.ResourceType, error) {
	var t model.ResourceType
	err := r.db.QueryRowContext(ctx, `SELECT id, type_name FROM resource_types WHERE id = ?`, id).
		Scan(&t.ID, &t.TypeName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResourceType{}, ErrResourceTypeNotFound
	}
	return t, err
}

// List returns all types ordered by id.
func (r *ResourceTypeRepo) List(ctx context.Context) ([]model.ResourceType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type_name FROM resource_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ResourceType{}
	for rows.Next() {
		var t model.ResourceType
		if err := rows.Scan(&t.ID, &t.TypeName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update renames a type.
func (r *ResourceTypeRepo) Update(ctx context.Context, t *model.ResourceType) error {
	t.TypeName = strings.TrimSpace(t.TypeName)
	res, err := r.db.ExecContext(ctx, `UPDATE resource_types SET type_name = ? WHERE id = ?`, t.TypeName, t.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a type that no resource references.
func (r *ResourceTypeRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resource_types WHERE id = ?`, id)
	if err != nil {
		if isReferenced(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResourceTypeNotFound
	}
	return nil
}
