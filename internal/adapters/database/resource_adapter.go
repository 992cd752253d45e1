package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

const resourcesTable = "resources"

var resourceColumns = []interface{}{
	"id", "kind", "facility_id", "department_id", "label", "status",
	"attributes", "version", "created_at", "updated_at",
}

// ResourceAdapter implements the ResourceRegistry interface. Reads always hit
// the primary; the registry is never served from cache.
type ResourceAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	clock  providers.Clock
}

// NewResourceAdapter creates a new resource adapter. clock stamps updated_at
// so registry rows agree with the engines' timeline; nil means the system
// clock.
func NewResourceAdapter(client *postgres.Client, clock providers.Clock) repositories.ResourceRegistry {
	if clock == nil {
		clock = providers.SystemClock{}
	}
	return &ResourceAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		clock:  clock,
	}
}

// Create registers a new resource
func (a *ResourceAdapter) Create(ctx context.Context, resource *entities.Resource) error {
	if resource.Version == 0 {
		resource.Version = 1
	}
	record := goqu.Record{
		"id":            resource.ID,
		"kind":          resource.Kind,
		"facility_id":   resource.FacilityID,
		"department_id": resource.DepartmentID,
		"label":         resource.Label,
		"status":        resource.Status,
		"attributes":    resource.Attributes,
		"version":       resource.Version,
		"created_at":    resource.CreatedAt,
		"updated_at":    resource.UpdatedAt,
	}

	query, args, err := a.db.Insert(resourcesTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return mapWriteError("failed to create resource", err, resource.ID)
	}
	return nil
}

// Get retrieves a resource by ID
func (a *ResourceAdapter) Get(ctx context.Context, id string) (*entities.Resource, error) {
	query, args, err := a.db.Select(resourceColumns...).
		From(resourcesTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	resource := &entities.Resource{}
	err = a.client.DB().GetContext(ctx, resource, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("resource with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get resource", err)
	}
	return resource, nil
}

// SetStatus is a single conditional UPDATE on (id, status). Zero rows means
// either the resource is unknown or another writer moved it first.
func (a *ResourceAdapter) SetStatus(ctx context.Context, id string, next, expected entities.ResourceStatus) (*entities.Resource, error) {
	query, args, err := a.db.Update(resourcesTable).
		Set(goqu.Record{
			"status":     next,
			"version":    goqu.L("version + 1"),
			"updated_at": a.clock.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id, "status": expected}).
		Returning(resourceColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	resource := &entities.Resource{}
	err = a.client.DB().GetContext(ctx, resource, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a.casMiss(ctx, id, fmt.Sprintf("resource %s is no longer %s", id, expected))
	}
	if err != nil {
		return nil, mapWriteError("failed to update resource status", err, id)
	}
	return resource, nil
}

// Relocate moves the resource if its version still matches
func (a *ResourceAdapter) Relocate(ctx context.Context, id, facilityID string, departmentID *string, expectedVersion int64) (*entities.Resource, error) {
	query, args, err := a.db.Update(resourcesTable).
		Set(goqu.Record{
			"facility_id":   facilityID,
			"department_id": departmentID,
			"version":       goqu.L("version + 1"),
			"updated_at":    a.clock.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id, "version": expectedVersion}).
		Returning(resourceColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	resource := &entities.Resource{}
	err = a.client.DB().GetContext(ctx, resource, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a.casMiss(ctx, id, fmt.Sprintf("resource %s changed since version %d", id, expectedVersion))
	}
	if err != nil {
		return nil, mapWriteError("failed to relocate resource", err, id)
	}
	return resource, nil
}

func (a *ResourceAdapter) casMiss(ctx context.Context, id, msg string) error {
	if _, err := a.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.NewConflictError(msg, id)
}

// ListByFacility retrieves resources for a facility
func (a *ResourceAdapter) ListByFacility(ctx context.Context, facilityID string, filter repositories.ResourceFilter) ([]*entities.Resource, error) {
	ds := a.db.Select(resourceColumns...).
		From(resourcesTable).
		Where(goqu.Ex{"facility_id": facilityID})

	if filter.Kind != "" {
		ds = ds.Where(goqu.Ex{"kind": filter.Kind})
	}
	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": filter.Status})
	}
	ds = ds.Order(goqu.I("label").Asc(), goqu.I("id").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var resources []*entities.Resource
	if err := a.client.DB().SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list resources", err)
	}
	return resources, nil
}
