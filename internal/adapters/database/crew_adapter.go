package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

const (
	crewMembersTable     = "crew_members"
	crewAssignmentsTable = "crew_assignments"
)

var crewColumns = []interface{}{"id", "name", "role", "facility_id", "status", "version", "updated_at"}

type crewAssignmentRow struct {
	ID            string         `db:"id"`
	CrewID        string         `db:"crew_id"`
	Kind          string         `db:"kind"`
	DispatchID    sql.NullString `db:"dispatch_id"`
	ReservedFrom  time.Time      `db:"reserved_from"`
	ReservedUntil time.Time      `db:"reserved_until"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (row crewAssignmentRow) toEntity() *entities.CrewAssignment {
	a := &entities.CrewAssignment{
		ID:        row.ID,
		CrewID:    row.CrewID,
		Kind:      entities.AssignmentKind(row.Kind),
		Window:    entities.NewTimeWindow(row.ReservedFrom, row.ReservedUntil),
		CreatedAt: row.CreatedAt,
	}
	if row.DispatchID.Valid {
		id := row.DispatchID.String
		a.DispatchID = &id
	}
	return a
}

// CrewAdapter implements the CrewRepository interface
type CrewAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewCrewAdapter creates a new crew adapter
func NewCrewAdapter(client *postgres.Client) repositories.CrewRepository {
	return &CrewAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create registers a crew member
func (a *CrewAdapter) Create(ctx context.Context, m *entities.CrewMember) error {
	if m.Version == 0 {
		m.Version = 1
	}
	query, args, err := a.db.Insert(crewMembersTable).Rows(goqu.Record{
		"id":          m.ID,
		"name":        m.Name,
		"role":        m.Role,
		"facility_id": m.FacilityID,
		"status":      m.Status,
		"version":     m.Version,
		"updated_at":  m.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return mapWriteError("failed to create crew member", err, m.ID)
	}
	return nil
}

// Get retrieves a crew member by ID
func (a *CrewAdapter) Get(ctx context.Context, id string) (*entities.CrewMember, error) {
	query, args, err := a.db.Select(crewColumns...).
		From(crewMembersTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	member := &entities.CrewMember{}
	err = a.client.DB().GetContext(ctx, member, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("crew member with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get crew member", err)
	}
	return member, nil
}

// SetStatus is a compare-and-set on the crew member's availability
func (a *CrewAdapter) SetStatus(ctx context.Context, id string, next, expected entities.CrewStatus) (*entities.CrewMember, error) {
	query, args, err := a.db.Update(crewMembersTable).
		Set(goqu.Record{
			"status":     next,
			"version":    goqu.L("version + 1"),
			"updated_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id, "status": expected}).
		Returning(crewColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	member := &entities.CrewMember{}
	err = a.client.DB().GetContext(ctx, member, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := a.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewConflictError(fmt.Sprintf("crew member %s is no longer %s", id, expected), id)
	}
	if err != nil {
		return nil, mapWriteError("failed to update crew status", err, id)
	}
	return member, nil
}

// CreateAssignment stores a schedule slot
func (a *CrewAdapter) CreateAssignment(ctx context.Context, as *entities.CrewAssignment) error {
	query, args, err := a.db.Insert(crewAssignmentsTable).Rows(goqu.Record{
		"id":             as.ID,
		"crew_id":        as.CrewID,
		"kind":           as.Kind,
		"dispatch_id":    as.DispatchID,
		"reserved_from":  as.Window.From,
		"reserved_until": as.Window.Until,
		"created_at":     as.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return mapWriteError("failed to create crew assignment", err, as.CrewID)
	}
	return nil
}

// CloseAssignment shortens an assignment so it ends at until
func (a *CrewAdapter) CloseAssignment(ctx context.Context, id string, until time.Time) error {
	query, args, err := a.db.Update(crewAssignmentsTable).
		Set(goqu.Record{"reserved_until": until.UTC()}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to close crew assignment", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment with id %s not found", id))
	}
	return nil
}

// ListAssignments retrieves the slots of a crew member that end after from
func (a *CrewAdapter) ListAssignments(ctx context.Context, crewID string, from time.Time) ([]*entities.CrewAssignment, error) {
	query, args, err := a.db.Select("id", "crew_id", "kind", "dispatch_id", "reserved_from", "reserved_until", "created_at").
		From(crewAssignmentsTable).
		Where(goqu.C("crew_id").Eq(crewID), goqu.C("reserved_until").Gt(from.UTC())).
		Order(goqu.I("reserved_from").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var rows []crewAssignmentRow
	if err := a.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list crew assignments", err)
	}

	out := make([]*entities.CrewAssignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}
