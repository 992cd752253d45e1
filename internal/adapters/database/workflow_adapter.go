package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

const workflowTable = "workflow_requests"

var workflowColumns = []interface{}{
	"id", "kind", "subject_resource_id", "requested_by", "approved_by", "rejected_by",
	"verified_by", "reason", "rejection_reason", "status", "details", "version",
	"requested_at", "approved_at", "rejected_at", "in_transit_at", "completed_at",
	"verified_at", "updated_at",
}

// workflowDetails is the kind-specific payload stored as JSONB
type workflowDetails struct {
	Transfer *entities.TransferDetails `json:"transfer,omitempty"`
	Disposal *entities.DisposalDetails `json:"disposal,omitempty"`
}

func (d workflowDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *workflowDetails) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		return nil
	}
	return fmt.Errorf("workflow details: unsupported source type %T", src)
}

type workflowRow struct {
	ID                string          `db:"id"`
	Kind              string          `db:"kind"`
	SubjectResourceID string          `db:"subject_resource_id"`
	RequestedBy       string          `db:"requested_by"`
	ApprovedBy        sql.NullString  `db:"approved_by"`
	RejectedBy        sql.NullString  `db:"rejected_by"`
	VerifiedBy        sql.NullString  `db:"verified_by"`
	Reason            string          `db:"reason"`
	RejectionReason   string          `db:"rejection_reason"`
	Status            string          `db:"status"`
	Details           workflowDetails `db:"details"`
	Version           int64           `db:"version"`
	RequestedAt       time.Time       `db:"requested_at"`
	ApprovedAt        sql.NullTime    `db:"approved_at"`
	RejectedAt        sql.NullTime    `db:"rejected_at"`
	InTransitAt       sql.NullTime    `db:"in_transit_at"`
	CompletedAt       sql.NullTime    `db:"completed_at"`
	VerifiedAt        sql.NullTime    `db:"verified_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (row workflowRow) toEntity() *entities.WorkflowRequest {
	return &entities.WorkflowRequest{
		ID:                row.ID,
		Kind:              entities.WorkflowKind(row.Kind),
		SubjectResourceID: row.SubjectResourceID,
		RequestedBy:       row.RequestedBy,
		ApprovedBy:        nullString(row.ApprovedBy),
		RejectedBy:        nullString(row.RejectedBy),
		VerifiedBy:        nullString(row.VerifiedBy),
		Reason:            row.Reason,
		RejectionReason:   row.RejectionReason,
		Status:            entities.WorkflowStatus(row.Status),
		Transfer:          row.Details.Transfer,
		Disposal:          row.Details.Disposal,
		Version:           row.Version,
		RequestedAt:       row.RequestedAt,
		ApprovedAt:        nullTime(row.ApprovedAt),
		RejectedAt:        nullTime(row.RejectedAt),
		InTransitAt:       nullTime(row.InTransitAt),
		CompletedAt:       nullTime(row.CompletedAt),
		VerifiedAt:        nullTime(row.VerifiedAt),
		UpdatedAt:         row.UpdatedAt,
	}
}

// WorkflowAdapter implements the WorkflowRepository interface
type WorkflowAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewWorkflowAdapter creates a new workflow adapter
func NewWorkflowAdapter(client *postgres.Client) repositories.WorkflowRepository {
	return &WorkflowAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create stores a new request. The partial unique index on the subject keeps
// a single open request per resource.
func (a *WorkflowAdapter) Create(ctx context.Context, w *entities.WorkflowRequest) error {
	if w.Version == 0 {
		w.Version = 1
	}
	query, args, err := a.db.Insert(workflowTable).Rows(goqu.Record{
		"id":                  w.ID,
		"kind":                w.Kind,
		"subject_resource_id": w.SubjectResourceID,
		"requested_by":        w.RequestedBy,
		"reason":              w.Reason,
		"status":              w.Status,
		"details":             workflowDetails{Transfer: w.Transfer, Disposal: w.Disposal},
		"version":             w.Version,
		"requested_at":        w.RequestedAt,
		"updated_at":          w.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return mapWriteError("failed to create workflow request", err, w.SubjectResourceID)
	}
	return nil
}

// GetByID retrieves a request by ID
func (a *WorkflowAdapter) GetByID(ctx context.Context, id string) (*entities.WorkflowRequest, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, fmt.Sprintf("workflow request with id %s not found", id))
}

// GetOpenBySubject retrieves the non-terminal request for a resource
func (a *WorkflowAdapter) GetOpenBySubject(ctx context.Context, resourceID string) (*entities.WorkflowRequest, error) {
	query, args, err := a.db.Select(workflowColumns...).
		From(workflowTable).
		Where(
			goqu.C("subject_resource_id").Eq(resourceID),
			goqu.C("status").NotIn(entities.WorkflowStatusRejected, entities.WorkflowStatusVerified),
			goqu.Or(
				goqu.C("kind").Neq(entities.WorkflowKindTransfer),
				goqu.C("status").Neq(entities.WorkflowStatusCompleted),
			),
		).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	return a.scanOne(ctx, query, args, fmt.Sprintf("resource %s has no open workflow request", resourceID))
}

func (a *WorkflowAdapter) getOne(ctx context.Context, where goqu.Ex, notFound string) (*entities.WorkflowRequest, error) {
	query, args, err := a.db.Select(workflowColumns...).From(workflowTable).Where(where).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	return a.scanOne(ctx, query, args, notFound)
}

func (a *WorkflowAdapter) scanOne(ctx context.Context, query string, args []interface{}, notFound string) (*entities.WorkflowRequest, error) {
	var row workflowRow
	err := a.client.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get workflow request", err)
	}
	return row.toEntity(), nil
}

// Update persists the request if its stored status still equals expected
func (a *WorkflowAdapter) Update(ctx context.Context, w *entities.WorkflowRequest, expected entities.WorkflowStatus) error {
	query, args, err := a.db.Update(workflowTable).
		Set(goqu.Record{
			"status":           w.Status,
			"approved_by":      w.ApprovedBy,
			"rejected_by":      w.RejectedBy,
			"verified_by":      w.VerifiedBy,
			"rejection_reason": w.RejectionReason,
			"details":          workflowDetails{Transfer: w.Transfer, Disposal: w.Disposal},
			"version":          goqu.L("version + 1"),
			"approved_at":      w.ApprovedAt,
			"rejected_at":      w.RejectedAt,
			"in_transit_at":    w.InTransitAt,
			"completed_at":     w.CompletedAt,
			"verified_at":      w.VerifiedAt,
			"updated_at":       w.UpdatedAt,
		}).
		Where(goqu.Ex{"id": w.ID, "status": expected}).
		Returning("version").
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	var version int64
	err = a.client.DB().GetContext(ctx, &version, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := a.GetByID(ctx, w.ID); getErr != nil {
			return getErr
		}
		return apperrors.NewConflictError(fmt.Sprintf("workflow request %s is no longer %s", w.ID, expected), w.ID)
	}
	if err != nil {
		return mapWriteError("failed to update workflow request", err, w.ID)
	}
	w.Version = version
	return nil
}
