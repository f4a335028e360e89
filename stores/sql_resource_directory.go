package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/oarkflow/squealx"

	"github.com/propsight/accessctl"
)

// Resource is one row of the resource directory.
type Resource struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Region       string `json:"region"`
	PropertyType string `json:"property_type"`
}

// SQLResourceDirectory is the data-layer collaborator: it serves resource
// metadata for single evaluations and applies a ScopeFilter to bulk listing
// queries so listings never need per-row evaluation.
type SQLResourceDirectory struct {
	db *squealx.DB
}

func NewSQLResourceDirectory(db *squealx.DB) *SQLResourceDirectory {
	return &SQLResourceDirectory{db: db}
}

// Upsert inserts or replaces one directory row.
func (d *SQLResourceDirectory) Upsert(ctx context.Context, res Resource) error {
	q := `INSERT INTO resources(id, kind, name, region, property_type)
	      VALUES(:id, :kind, :name, :region, :property_type)
	      ON CONFLICT(kind, id) DO UPDATE SET name=excluded.name, region=excluded.region, property_type=excluded.property_type`
	_, err := d.db.NamedExecContext(ctx, q, map[string]any{
		"id":            res.ID,
		"kind":          res.Kind,
		"name":          res.Name,
		"region":        res.Region,
		"property_type": res.PropertyType,
	})
	return err
}

// FetchMetadata implements accessctl.MetadataProvider against the directory.
func (d *SQLResourceDirectory) FetchMetadata(ctx context.Context, kind accessctl.ResourceKind, resourceID string) (*accessctl.ResourceMetadata, error) {
	q := `SELECT region, property_type FROM resources WHERE kind = :kind AND id = :id`
	r, err := d.db.NamedQueryContext(ctx, q, map[string]any{"kind": string(kind), "id": resourceID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, accessctl.ErrMetadataNotFound
	}
	md := &accessctl.ResourceMetadata{}
	if err := r.Scan(&md.Region, &md.PropertyType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accessctl.ErrMetadataNotFound
		}
		return nil, err
	}
	return md, nil
}

// List returns the directory rows of one kind visible under the filter,
// ordered by id. An unrestricted filter lists everything of that kind; a
// filter with an empty constraint set returns nothing.
func (d *SQLResourceDirectory) List(ctx context.Context, kind accessctl.ResourceKind, f accessctl.ScopeFilter) ([]Resource, error) {
	if f.MatchesNothing() {
		return []Resource{}, nil
	}
	q := `SELECT id, kind, name, region, property_type FROM resources WHERE kind = :kind`
	params := map[string]any{"kind": string(kind)}
	appendIn(&q, params, "region", f.RegionIn)
	appendIn(&q, params, "property_type", f.PropertyTypeIn)
	appendIn(&q, params, "id", f.ResourceIDIn)
	q += " ORDER BY id"

	r, err := d.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]Resource, 0)
	for r.Next() {
		var res Resource
		if err := r.Scan(&res.ID, &res.Kind, &res.Name, &res.Region, &res.PropertyType); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// appendIn expands an optional constraint set into a named IN clause. A nil
// set constrains nothing.
func appendIn(q *string, params map[string]any, column string, values []string) {
	if values == nil {
		return
	}
	names := make([]string, 0, len(values))
	for i, v := range values {
		name := fmt.Sprintf("%s_%d", column, i)
		names = append(names, ":"+name)
		params[name] = v
	}
	*q += fmt.Sprintf(" AND %s IN (%s)", column, strings.Join(names, ", "))
}
