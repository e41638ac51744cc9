package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vairify/vaicheck-server-go/internal/database"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

// ErrDuplicateCode is returned by Create when another non-terminal session
// already holds the code.
var ErrDuplicateCode = errors.New("session code already in use")

const uniqueViolation = "23505"

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindActiveByCode returns the non-terminal session holding code, if any.
	FindActiveByCode(ctx context.Context, code string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// Save writes s only if the stored version still equals s.Version. It
	// reports false when another writer got there first. On success s.Version
	// is bumped to the stored value.
	Save(ctx context.Context, s *model.Session) (bool, error)
	// Complete persists the completed session and inserts enc in one
	// transaction. It reports false if the session changed underneath or
	// already carries an encounter; in that case nothing is written.
	Complete(ctx context.Context, s *model.Session, enc *model.Encounter) (bool, error)
	ListPendingReview(ctx context.Context) ([]*model.Session, error)
	// DeleteUnclaimed removes sessions nobody joined whose QR expired before
	// now, or that never got a QR and were created before createdBefore.
	DeleteUnclaimed(ctx context.Context, now, createdBefore time.Time) (int64, error)
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	database.DBTX
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db   sessionDB
	conn *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db, conn: db}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM vai_check_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByCode(ctx context.Context, code string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM vai_check_sessions
		WHERE code = $1
		AND status NOT IN ('completed', 'declined')
	`, code)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO vai_check_sessions (id, code, initiator_id)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.ID, params.Code, params.InitiatorID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}
	return &session, nil
}

const updateSessionSQL = `
	UPDATE vai_check_sessions SET
		counterpart_id = :counterpart_id,
		status = :status,
		initiator_decision = :initiator_decision,
		counterpart_decision = :counterpart_decision,
		initiator_contract = :initiator_contract,
		counterpart_contract = :counterpart_contract,
		initiator_verified = :initiator_verified,
		initiator_final_verified = :initiator_final_verified,
		counterpart_final_verified = :counterpart_final_verified,
		initiator_attempts = :initiator_attempts,
		counterpart_attempts = :counterpart_attempts,
		qr_payload = :qr_payload,
		qr_expires_at = :qr_expires_at,
		review_checkpoint = :review_checkpoint,
		review_role = :review_role,
		review_reason = :review_reason,
		resume_status = :resume_status,
		manual_review_outcome = :manual_review_outcome,
		reviewed_by = :reviewed_by,
		verification_method = :verification_method,
		encounter_id = :encounter_id,
		joined_at = :joined_at,
		completed_at = :completed_at,
		updated_at = :updated_at,
		version = version + 1
	WHERE id = :id AND version = :version`

func (r *sessionRepo) Save(ctx context.Context, s *model.Session) (bool, error) {
	s.UpdatedAt = time.Now()
	ok, err := saveWith(ctx, r.db, updateSessionSQL, s)
	if err != nil || !ok {
		return false, err
	}
	s.Version++
	return true, nil
}

func (r *sessionRepo) Complete(ctx context.Context, s *model.Session, enc *model.Encounter) (bool, error) {
	s.UpdatedAt = time.Now()
	var won bool
	err := database.RunInTx(ctx, r.conn, func(tx *sqlx.Tx) error {
		ok, err := saveWith(ctx, tx, updateSessionSQL+` AND encounter_id IS NULL`, s)
		if err != nil || !ok {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO encounters (id, session_id, initiator_id, counterpart_id, completed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, enc.ID, enc.SessionID, enc.InitiatorID, enc.CounterpartID, enc.CompletedAt, enc.CreatedAt)
		if err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if won {
		s.Version++
	}
	return won, nil
}

func saveWith(ctx context.Context, db sessionDB, query string, s *model.Session) (bool, error) {
	result, err := db.NamedExecContext(ctx, query, s)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sessionRepo) ListPendingReview(ctx context.Context) ([]*model.Session, error) {
	var sessions []*model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM vai_check_sessions
		WHERE status = 'manual_review_pending'
		ORDER BY updated_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) DeleteUnclaimed(ctx context.Context, now, createdBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM vai_check_sessions
		WHERE counterpart_id IS NULL
		AND status IN ('initiated', 'qr_shown')
		AND (qr_expires_at < $1 OR (qr_expires_at IS NULL AND created_at < $2))
	`, now, createdBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
