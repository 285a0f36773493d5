package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/resource-booking/internal/model"
)

// ResourceRepo provides CRUD over resources.  Reads join resource_types
// so every returned Resource carries its type name.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo returns a ResourceRepo bound to db.
func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

const resourceSelect = `SELECT r.id, r.name, r.resource_type_id, t.type_name
               FROM resources r
               JOIN resource_types t ON t.id = r.resource_type_id`

// Create inserts res.  A resource_type_id that does not exist yields
// ErrResourceTypeNotFound.
func (r *ResourceRepo) Create(ctx context.Context, res *model.Resource) error {
	return r.CreateTx(ctx, r.db, res)
}

// CreateTx inserts res using the supplied handle.
func (r *ResourceRepo) CreateTx(ctx context.Context, tx dbtx, res *model.Resource) error {
	res.Name = strings.TrimSpace(res.Name)
	result, err := tx.ExecContext(ctx,
		`INSERT INTO resources (name, resource_type_id) VALUES (?, ?)`, res.Name, res.ResourceTypeID)
	if err != nil {
		if isMissingParent(err) {
			return ErrResourceTypeNotFound
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return tx.QueryRowContext(ctx, `SELECT type_name FROM resource_types WHERE id = ?`, res.ResourceTypeID).
		Scan(&res.TypeName)
}

// GetByID returns a single resource or ErrResourceNotFound.
func (r *ResourceRepo) GetByID(ctx context.Context, id uint64) (model.Resource, error) {
	var res model.Resource
	err := r.db.QueryRowContext(ctx, resourceSelect+` WHERE r.id = ?`, id).
		Scan(&res.ID, &res.Name, &res.ResourceTypeID, &res.TypeName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, ErrResourceNotFound
	}
	return res, err
}

// List returns resources ordered by id, optionally restricted to one type.
func (r *ResourceRepo) List(ctx context.Context, typeID *uint64) ([]model.Resource, error) {
	q := resourceSelect
	var args []any
	if typeID != nil {
		q += ` WHERE r.resource_type_id = ?`
		args = append(args, *typeID)
	}
	q += ` ORDER BY r.id`
	return scanResources(r.db.QueryContext(ctx, q, args...))
}

func scanResources(rows *sql.Rows, err error) ([]model.Resource, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Resource{}
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.ResourceTypeID, &res.TypeName); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update changes name and type of res.
func (r *ResourceRepo) Update(ctx context.Context, res *model.Resource) error {
	res.Name = strings.TrimSpace(res.Name)
	_, err := r.db.ExecContext(ctx,
		`UPDATE resources SET name = ?, resource_type_id = ? WHERE id = ?`, res.Name, res.ResourceTypeID, res.ID)
	if err != nil {
		if isMissingParent(err) {
			return ErrResourceTypeNotFound
		}
		return err
	}
	// Re-read for the joined type name; a missing row surfaces here.
	fresh, err := r.GetByID(ctx, res.ID)
	if err != nil {
		return err
	}
	*res = fresh
	return nil
}

// Delete removes a resource without bookings.
func (r *ResourceRepo) Delete(ctx context.Context, id uint64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		if isReferenced(err) {
			return ErrConflict
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResourceNotFound
	}
	return nil
}
