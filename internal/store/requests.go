package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/refledger/internal/domain"
)

const requestColumns = `id, kind, account_id, amount::text, fee::text, final_amount::text, payload,
	status, admin_notes, processed_by, processed_at, created_at, updated_at`

func scanRequest(row rowScanner) (*domain.Request, error) {
	var r domain.Request
	var amount, fee, final string
	var payload []byte
	if err := row.Scan(&r.ID, &r.Kind, &r.AccountID, &amount, &fee, &final, &payload,
		&r.Status, &r.AdminNotes, &r.ProcessedBy, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := parseNumerics([]string{amount, fee, final}, &r.Amount, &r.Fee, &r.FinalAmount); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		r.Payload = payload
	}
	return &r, nil
}

func (q *Queries) InsertRequest(ctx context.Context, r *domain.Request) error {
	var payload []byte
	if len(r.Payload) > 0 {
		payload = r.Payload
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO requests (kind, account_id, amount, fee, final_amount, payload, status)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, 'pending')
		 RETURNING id, status, created_at, updated_at`,
		string(r.Kind), r.AccountID, r.Amount.String(), r.Fee.String(), r.FinalAmount.String(), payload,
	).Scan(&r.ID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert %s request: %w", r.Kind, err)
	}
	return nil
}

func (q *Queries) GetRequest(ctx context.Context, kind domain.RequestKind, id int64) (*domain.Request, error) {
	r, err := scanRequest(q.db.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE id = $1 AND kind = $2", id, string(kind)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("get %s request %d: %w", kind, id, err)
	}
	return r, nil
}

func (q *Queries) ListRequests(ctx context.Context, f domain.RequestFilter) ([]domain.Request, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.AccountID != 0 {
		add("account_id = $%d", f.AccountID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := pageArgs(f.Limit, f.Offset)
	query += " ORDER BY created_at DESC, id DESC LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	requests := []domain.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// TransitionRequest is a compare-and-set on status: only a row still
// 'pending' is updated, so two concurrent approvals cannot both succeed.
func (q *Queries) TransitionRequest(ctx context.Context, kind domain.RequestKind, id int64, status domain.RequestStatus, notes *string, adminID int64) (*domain.Request, error) {
	r, err := scanRequest(q.db.QueryRow(ctx,
		`UPDATE requests
		 SET status = $3, admin_notes = $4, processed_by = $5, processed_at = now(), updated_at = now()
		 WHERE id = $1 AND kind = $2 AND status = 'pending'
		 RETURNING `+requestColumns,
		id, string(kind), string(status), notes, adminID,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition %s request %d: %w", kind, id, err)
	}

	var current string
	err = q.db.QueryRow(ctx, "SELECT status FROM requests WHERE id = $1 AND kind = $2", id, string(kind)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s request %d status: %w", kind, id, err)
	}
	return nil, domain.ErrAlreadyProcessed
}
