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

const reservationsTable = "reservations"

var reservationColumns = []interface{}{
	"id", "resource_id", "resource_kind", "requester_id", "holder",
	"reserved_from", "reserved_until", "status", "reason", "rejection_reason",
	"version", "created_at", "updated_at", "approved_at", "checked_in_at",
	"completed_at", "cancelled_at", "expired_at",
}

type reservationRow struct {
	ID              string       `db:"id"`
	ResourceID      string       `db:"resource_id"`
	ResourceKind    string       `db:"resource_kind"`
	RequesterID     string       `db:"requester_id"`
	Holder          string       `db:"holder"`
	ReservedFrom    time.Time    `db:"reserved_from"`
	ReservedUntil   time.Time    `db:"reserved_until"`
	Status          string       `db:"status"`
	Reason          string       `db:"reason"`
	RejectionReason string       `db:"rejection_reason"`
	Version         int64        `db:"version"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	ApprovedAt      sql.NullTime `db:"approved_at"`
	CheckedInAt     sql.NullTime `db:"checked_in_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
	CancelledAt     sql.NullTime `db:"cancelled_at"`
	ExpiredAt       sql.NullTime `db:"expired_at"`
}

func (row reservationRow) toEntity() (*entities.Reservation, error) {
	holder, err := entities.ParseNotifiable(row.Holder)
	if err != nil {
		return nil, apperrors.NewInternalError("corrupt reservation holder", err)
	}
	return &entities.Reservation{
		ID:              row.ID,
		ResourceID:      row.ResourceID,
		ResourceKind:    entities.ResourceKind(row.ResourceKind),
		RequesterID:     row.RequesterID,
		Holder:          holder,
		Window:          entities.NewTimeWindow(row.ReservedFrom, row.ReservedUntil),
		Status:          entities.ReservationStatus(row.Status),
		Reason:          row.Reason,
		RejectionReason: row.RejectionReason,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		ApprovedAt:      nullTime(row.ApprovedAt),
		CheckedInAt:     nullTime(row.CheckedInAt),
		CompletedAt:     nullTime(row.CompletedAt),
		CancelledAt:     nullTime(row.CancelledAt),
		ExpiredAt:       nullTime(row.ExpiredAt),
	}, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// ReservationAdapter implements the ReservationRepository interface
type ReservationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewReservationAdapter creates a new reservation adapter
func NewReservationAdapter(client *postgres.Client) repositories.ReservationRepository {
	return &ReservationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create stores a new reservation
func (a *ReservationAdapter) Create(ctx context.Context, r *entities.Reservation) error {
	if r.Version == 0 {
		r.Version = 1
	}
	record := goqu.Record{
		"id":               r.ID,
		"resource_id":      r.ResourceID,
		"resource_kind":    r.ResourceKind,
		"requester_id":     r.RequesterID,
		"holder":           r.Holder.String(),
		"reserved_from":    r.Window.From,
		"reserved_until":   r.Window.Until,
		"status":           r.Status,
		"reason":           r.Reason,
		"rejection_reason": r.RejectionReason,
		"version":          r.Version,
		"created_at":       r.CreatedAt,
		"updated_at":       r.UpdatedAt,
		"approved_at":      r.ApprovedAt,
		"checked_in_at":    r.CheckedInAt,
	}

	query, args, err := a.db.Insert(reservationsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return mapWriteError("failed to create reservation", err, r.ResourceID)
	}
	return nil
}

// GetByID retrieves a reservation by ID
func (a *ReservationAdapter) GetByID(ctx context.Context, id string) (*entities.Reservation, error) {
	query, args, err := a.db.Select(reservationColumns...).
		From(reservationsTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var row reservationRow
	err = a.client.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get reservation", err)
	}
	return row.toEntity()
}

// UpdateStatus persists the status and milestones if the stored status still
// equals expected
func (a *ReservationAdapter) UpdateStatus(ctx context.Context, r *entities.Reservation, expected entities.ReservationStatus) error {
	query, args, err := a.db.Update(reservationsTable).
		Set(goqu.Record{
			"status":           r.Status,
			"rejection_reason": r.RejectionReason,
			"version":          goqu.L("version + 1"),
			"updated_at":       r.UpdatedAt,
			"approved_at":      r.ApprovedAt,
			"checked_in_at":    r.CheckedInAt,
			"completed_at":     r.CompletedAt,
			"cancelled_at":     r.CancelledAt,
			"expired_at":       r.ExpiredAt,
		}).
		Where(goqu.Ex{"id": r.ID, "status": expected}).
		Returning("version").
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	var version int64
	err = a.client.DB().GetContext(ctx, &version, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := a.GetByID(ctx, r.ID); getErr != nil {
			return getErr
		}
		return apperrors.NewConflictError(fmt.Sprintf("reservation %s is no longer %s", r.ID, expected), r.ID)
	}
	if err != nil {
		return mapWriteError("failed to update reservation", err, r.ID)
	}
	r.Version = version
	return nil
}

// ListOpenByResource retrieves every non-terminal reservation of a resource
func (a *ReservationAdapter) ListOpenByResource(ctx context.Context, resourceID string) ([]*entities.Reservation, error) {
	ds := a.db.Select(reservationColumns...).
		From(reservationsTable).
		Where(
			goqu.C("resource_id").Eq(resourceID),
			goqu.C("status").In(
				entities.ReservationStatusPending,
				entities.ReservationStatusActive,
				entities.ReservationStatusApproved,
				entities.ReservationStatusInUse,
			),
		).
		Order(goqu.I("reserved_from").Asc())
	return a.list(ctx, ds)
}

// ListByResource retrieves reservations of a resource
func (a *ReservationAdapter) ListByResource(ctx context.Context, resourceID string, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	ds := a.db.Select(reservationColumns...).
		From(reservationsTable).
		Where(goqu.C("resource_id").Eq(resourceID))

	if filter.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(filter.Status))
	}
	if filter.From != nil {
		ds = ds.Where(goqu.C("reserved_until").Gt(*filter.From))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("reserved_from").Lt(*filter.To))
	}
	ds = ds.Order(goqu.I("reserved_from").Asc(), goqu.I("id").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	return a.list(ctx, ds)
}

// ListOverdue retrieves expirable reservations whose window ended at or before now
func (a *ReservationAdapter) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entities.Reservation, error) {
	ds := a.db.Select(reservationColumns...).
		From(reservationsTable).
		Where(
			goqu.C("status").In(entities.ReservationStatusApproved, entities.ReservationStatusActive),
			goqu.C("reserved_until").Lte(now.UTC()),
		).
		Order(goqu.I("reserved_until").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return a.list(ctx, ds)
}

func (a *ReservationAdapter) list(ctx context.Context, ds *goqu.SelectDataset) ([]*entities.Reservation, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var rows []reservationRow
	if err := a.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list reservations", err)
	}

	out := make([]*entities.Reservation, 0, len(rows))
	for _, row := range rows {
		r, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
