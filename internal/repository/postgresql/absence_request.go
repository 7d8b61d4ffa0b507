package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var errLockOutsideTx = errors.New("ledger lock requires a transaction")

type absenceRequestRepositoryImpl struct {
	db  *database.DB
	loc *time.Location
}

// NewAbsenceRequestRepository stores requests in absence_requests. loc is
// the policy location used to derive civil dates of permissions and the
// exact window of leaves.
func NewAbsenceRequestRepository(db *database.DB, loc *time.Location) absence.Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &absenceRequestRepositoryImpl{db: db, loc: loc}
}

const absenceColumns = `
	id, user_id, kind, category, start_date, end_date, start_at, end_at,
	requested_units::text, justification, emergency_contact_name, emergency_contact_phone,
	attachments, status, submitted_at, decided_at, decided_by, refusal_reason,
	withdrawn_at, updated_at`

func (r *absenceRequestRepositoryImpl) Create(ctx context.Context, request absence.AbsenceRequest) (absence.AbsenceRequest, error) {
	q := GetQuerier(ctx, r.db)

	attachments, err := marshalAttachments(request.Attachments)
	if err != nil {
		return absence.AbsenceRequest{}, err
	}
	startDate, endDate := absence.CivilSpan(request, r.loc)
	startAt, endAt := request.Window(r.loc)
	contactName, contactPhone := contactColumns(request.EmergencyContact)

	query := `
		INSERT INTO absence_requests (
			id, user_id, kind, category, start_date, end_date, start_at, end_at,
			requested_units, justification, emergency_contact_name, emergency_contact_phone,
			attachments, status, submitted_at, decided_at, decided_by, refusal_reason,
			withdrawn_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = q.Exec(ctx, query,
		request.ID,
		request.UserID,
		string(request.Kind),
		string(request.Category),
		startDate,
		// end_date is inclusive; CivilSpan's end is exclusive.
		endDate.AddDate(0, 0, -1),
		startAt.UTC(),
		endAt.UTC(),
		request.RequestedUnits.String(),
		request.Justification,
		contactName,
		contactPhone,
		attachments,
		string(request.Status),
		request.SubmittedAt,
		request.DecidedAt,
		request.DecidedBy,
		request.RefusalReason,
		request.WithdrawnAt,
		request.UpdatedAt,
	)
	if err != nil {
		return absence.AbsenceRequest{}, fmt.Errorf("failed to insert absence request: %w", err)
	}

	return request, nil
}

func (r *absenceRequestRepositoryImpl) GetByID(ctx context.Context, id string) (absence.AbsenceRequest, error) {
	return r.getByID(ctx, id, "")
}

// GetByIDForUpdate implements absence.Repository.
func (r *absenceRequestRepositoryImpl) GetByIDForUpdate(ctx context.Context, id string) (absence.AbsenceRequest, error) {
	if !inTransaction(ctx) {
		return absence.AbsenceRequest{}, errLockOutsideTx
	}
	return r.getByID(ctx, id, " FOR UPDATE")
}

func (r *absenceRequestRepositoryImpl) getByID(ctx context.Context, id string, lockClause string) (absence.AbsenceRequest, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + absenceColumns + ` FROM absence_requests WHERE id = $1` + lockClause

	request, err := r.scanRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return absence.AbsenceRequest{}, absence.ErrNotFound
		}
		return absence.AbsenceRequest{}, fmt.Errorf("failed to get absence request: %w", err)
	}
	return request, nil
}

// Update writes the mutable lifecycle columns.
func (r *absenceRequestRepositoryImpl) Update(ctx context.Context, request absence.AbsenceRequest) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE absence_requests
		SET status = $2, decided_at = $3, decided_by = $4, refusal_reason = $5,
			withdrawn_at = $6, updated_at = $7
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query,
		request.ID,
		string(request.Status),
		request.DecidedAt,
		request.DecidedBy,
		request.RefusalReason,
		request.WithdrawnAt,
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update absence request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return absence.ErrNotFound
	}
	return nil
}

func (r *absenceRequestRepositoryImpl) ListOverlapping(ctx context.Context, userID string, kind absence.Kind, from, to time.Time) ([]absence.AbsenceRequest, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + absenceColumns + `
		FROM absence_requests
		WHERE user_id = $1 AND kind = $2 AND start_date < $4 AND end_date >= $3
		ORDER BY start_date`

	rows, err := q.Query(ctx, query, userID, string(kind), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping absence requests: %w", err)
	}
	return r.collect(rows)
}

func (r *absenceRequestRepositoryImpl) List(ctx context.Context, filter absence.Filter) ([]absence.AbsenceRequest, int64, error) {
	q := GetQuerier(ctx, r.db)
	filter.Normalize()

	whereClauses := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Kind != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Status != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.From != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("end_date >= $%d", argIdx))
		args = append(args, absence.CivilDate(*filter.From))
		argIdx++
	}
	if filter.To != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("start_date <= $%d", argIdx))
		args = append(args, absence.CivilDate(*filter.To))
		argIdx++
	}
	where := strings.Join(whereClauses, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM absence_requests WHERE ` + where
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count absence requests: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM absence_requests WHERE %s
		ORDER BY submitted_at DESC
		LIMIT $%d OFFSET $%d`, absenceColumns, where, argIdx, argIdx+1)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list absence requests: %w", err)
	}
	requests, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *absenceRequestRepositoryImpl) ListDueForTransition(ctx context.Context, now time.Time) ([]absence.AbsenceRequest, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + absenceColumns + `
		FROM absence_requests
		WHERE status IN ('approved', 'active') AND start_at <= $1
		ORDER BY start_at`

	rows, err := q.Query(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list absence requests due for transition: %w", err)
	}
	return r.collect(rows)
}

// LockLedger takes a transaction-scoped advisory lock on the ledger key.
func (r *absenceRequestRepositoryImpl) LockLedger(ctx context.Context, key absence.LedgerKey) error {
	if !inTransaction(ctx) {
		return errLockOutsideTx
	}
	q := GetQuerier(ctx, r.db)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("failed to acquire ledger lock: %w", err)
	}
	return nil
}

func (r *absenceRequestRepositoryImpl) collect(rows pgx.Rows) ([]absence.AbsenceRequest, error) {
	defer rows.Close()

	requests := []absence.AbsenceRequest{}
	for rows.Next() {
		request, err := r.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan absence request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *absenceRequestRepositoryImpl) scanRequest(row pgx.Row) (absence.AbsenceRequest, error) {
	var (
		req                       absence.AbsenceRequest
		kind, category, status    string
		startDate, endDate        time.Time
		startAt, endAt            time.Time
		units                     string
		contactName, contactPhone *string
		attachments               []byte
	)

	err := row.Scan(
		&req.ID,
		&req.UserID,
		&kind,
		&category,
		&startDate,
		&endDate,
		&startAt,
		&endAt,
		&units,
		&req.Justification,
		&contactName,
		&contactPhone,
		&attachments,
		&status,
		&req.SubmittedAt,
		&req.DecidedAt,
		&req.DecidedBy,
		&req.RefusalReason,
		&req.WithdrawnAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return absence.AbsenceRequest{}, err
	}

	req.Kind = absence.Kind(kind)
	req.Category = absence.Category(category)
	req.Status = absence.Status(status)

	if req.Kind == absence.KindLeave {
		req.Period = absence.Period{Start: absence.CivilDate(startDate), End: absence.CivilDate(endDate)}
	} else {
		req.Period = absence.Period{Start: startAt.In(r.loc), End: endAt.In(r.loc)}
	}

	if req.RequestedUnits, err = decimal.NewFromString(units); err != nil {
		return absence.AbsenceRequest{}, fmt.Errorf("invalid requested_units %q: %w", units, err)
	}

	if contactName != nil && contactPhone != nil {
		req.EmergencyContact = &absence.EmergencyContact{Name: *contactName, Phone: *contactPhone}
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &req.Attachments); err != nil {
			return absence.AbsenceRequest{}, fmt.Errorf("invalid attachments: %w", err)
		}
	}

	return req, nil
}

func marshalAttachments(attachments []absence.Attachment) ([]byte, error) {
	if attachments == nil {
		attachments = []absence.Attachment{}
	}
	data, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachments: %w", err)
	}
	return data, nil
}

func contactColumns(c *absence.EmergencyContact) (*string, *string) {
	if c == nil {
		return nil, nil
	}
	return &c.Name, &c.Phone
}
