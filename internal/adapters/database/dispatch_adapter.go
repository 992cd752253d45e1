package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

const dispatchesTable = "dispatches"

var dispatchColumns = []interface{}{
	"id", "dispatch_number", "ambulance_id", "crew_ids", "dispatcher_id", "patient",
	"pickup_location", "destination_location", "priority", "status", "cancel_reason",
	"version", "dispatched_at", "en_route_pickup_at", "at_pickup_at",
	"en_route_destination_at", "arrived_at", "completed_at", "cancelled_at", "updated_at",
}

type dispatchRow struct {
	ID                   string            `db:"id"`
	DispatchNumber       string            `db:"dispatch_number"`
	AmbulanceID          string            `db:"ambulance_id"`
	CrewIDs              pq.StringArray    `db:"crew_ids"`
	DispatcherID         string            `db:"dispatcher_id"`
	Patient              sql.NullString    `db:"patient"`
	Pickup               entities.Location `db:"pickup_location"`
	Destination          entities.Location `db:"destination_location"`
	Priority             string            `db:"priority"`
	Status               string            `db:"status"`
	CancelReason         string            `db:"cancel_reason"`
	Version              int64             `db:"version"`
	DispatchedAt         time.Time         `db:"dispatched_at"`
	EnRoutePickupAt      sql.NullTime      `db:"en_route_pickup_at"`
	AtPickupAt           sql.NullTime      `db:"at_pickup_at"`
	EnRouteDestinationAt sql.NullTime      `db:"en_route_destination_at"`
	ArrivedAt            sql.NullTime      `db:"arrived_at"`
	CompletedAt          sql.NullTime      `db:"completed_at"`
	CancelledAt          sql.NullTime      `db:"cancelled_at"`
	UpdatedAt            time.Time         `db:"updated_at"`
}

func (row dispatchRow) toEntity() (*entities.Dispatch, error) {
	d := &entities.Dispatch{
		ID:                   row.ID,
		DispatchNumber:       row.DispatchNumber,
		AmbulanceID:          row.AmbulanceID,
		CrewIDs:              []string(row.CrewIDs),
		DispatcherID:         row.DispatcherID,
		Pickup:               row.Pickup,
		Destination:          row.Destination,
		Priority:             entities.DispatchPriority(row.Priority),
		Status:               entities.DispatchStatus(row.Status),
		CancelReason:         row.CancelReason,
		Version:              row.Version,
		DispatchedAt:         row.DispatchedAt.UTC(),
		EnRoutePickupAt:      nullTime(row.EnRoutePickupAt),
		AtPickupAt:           nullTime(row.AtPickupAt),
		EnRouteDestinationAt: nullTime(row.EnRouteDestinationAt),
		ArrivedAt:            nullTime(row.ArrivedAt),
		CompletedAt:          nullTime(row.CompletedAt),
		CancelledAt:          nullTime(row.CancelledAt),
		UpdatedAt:            row.UpdatedAt,
	}
	if row.Patient.Valid {
		patient, err := entities.ParseNotifiable(row.Patient.String)
		if err != nil {
			return nil, apperrors.NewInternalError("corrupt dispatch patient", err)
		}
		d.Patient = &patient
	}
	return d, nil
}

func patientValue(p *entities.Notifiable) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}

// DispatchAdapter implements the DispatchRepository interface
type DispatchAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDispatchAdapter creates a new dispatch adapter
func NewDispatchAdapter(client *postgres.Client) repositories.DispatchRepository {
	return &DispatchAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create stores a new dispatch. The partial unique index on ambulance_id
// rejects a second live dispatch for the same ambulance.
func (a *DispatchAdapter) Create(ctx context.Context, d *entities.Dispatch) error {
	if d.Version == 0 {
		d.Version = 1
	}
	record := goqu.Record{
		"id":                   d.ID,
		"dispatch_number":      d.DispatchNumber,
		"ambulance_id":         d.AmbulanceID,
		"crew_ids":             pq.StringArray(d.CrewIDs),
		"dispatcher_id":        d.DispatcherID,
		"patient":              patientValue(d.Patient),
		"pickup_location":      d.Pickup,
		"destination_location": d.Destination,
		"priority":             d.Priority,
		"status":               d.Status,
		"cancel_reason":        d.CancelReason,
		"version":              d.Version,
		"dispatched_at":        d.DispatchedAt,
		"updated_at":           d.UpdatedAt,
	}

	query, args, err := a.db.Insert(dispatchesTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return mapWriteError("failed to create dispatch", err, d.AmbulanceID)
	}
	return nil
}

// GetByID retrieves a dispatch by ID
func (a *DispatchAdapter) GetByID(ctx context.Context, id string) (*entities.Dispatch, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, fmt.Sprintf("dispatch with id %s not found", id))
}

// GetActiveByAmbulance retrieves the non-terminal dispatch of an ambulance
func (a *DispatchAdapter) GetActiveByAmbulance(ctx context.Context, ambulanceID string) (*entities.Dispatch, error) {
	return a.getOne(ctx, goqu.Ex{
		"ambulance_id": ambulanceID,
		"status":       goqu.Op{"notIn": []entities.DispatchStatus{entities.DispatchStatusCompleted, entities.DispatchStatusCancelled}},
	}, fmt.Sprintf("ambulance %s has no active dispatch", ambulanceID))
}

func (a *DispatchAdapter) getOne(ctx context.Context, where goqu.Ex, notFound string) (*entities.Dispatch, error) {
	query, args, err := a.db.Select(dispatchColumns...).
		From(dispatchesTable).
		Where(where).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var row dispatchRow
	err = a.client.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get dispatch", err)
	}
	return row.toEntity()
}

// Update persists status, milestones and cancel reason if the stored status
// still equals expected
func (a *DispatchAdapter) Update(ctx context.Context, d *entities.Dispatch, expected entities.DispatchStatus) error {
	query, args, err := a.db.Update(dispatchesTable).
		Set(goqu.Record{
			"status":                  d.Status,
			"cancel_reason":           d.CancelReason,
			"version":                 goqu.L("version + 1"),
			"en_route_pickup_at":      d.EnRoutePickupAt,
			"at_pickup_at":            d.AtPickupAt,
			"en_route_destination_at": d.EnRouteDestinationAt,
			"arrived_at":              d.ArrivedAt,
			"completed_at":            d.CompletedAt,
			"cancelled_at":            d.CancelledAt,
			"updated_at":              d.UpdatedAt,
		}).
		Where(goqu.Ex{"id": d.ID, "status": expected}).
		Returning("version").
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	var version int64
	err = a.client.DB().GetContext(ctx, &version, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := a.GetByID(ctx, d.ID); getErr != nil {
			return getErr
		}
		return apperrors.NewConflictError(fmt.Sprintf("dispatch %s is no longer %s", d.ID, expected), d.ID)
	}
	if err != nil {
		return mapWriteError("failed to update dispatch", err, d.ID)
	}
	d.Version = version
	return nil
}
