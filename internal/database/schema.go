package database

import (
	"context"
	"fmt"
)

// vai_verifications is owned by the identity registry; it is created here only
// so a fresh database can boot. The session service never writes to it.
const schema = `
CREATE TABLE IF NOT EXISTS vai_verifications (
	user_id             TEXT PRIMARY KEY,
	vai_number          TEXT NOT NULL UNIQUE,
	biometric_photo_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vai_check_sessions (
	id                         UUID PRIMARY KEY,
	code                       CHAR(8) NOT NULL,
	initiator_id               TEXT NOT NULL,
	counterpart_id             TEXT,
	status                     TEXT NOT NULL DEFAULT 'initiated',
	initiator_decision         TEXT NOT NULL DEFAULT 'pending',
	counterpart_decision       TEXT NOT NULL DEFAULT 'pending',
	initiator_contract         TEXT NOT NULL DEFAULT 'pending',
	counterpart_contract       TEXT NOT NULL DEFAULT 'pending',
	initiator_verified         BOOLEAN NOT NULL DEFAULT FALSE,
	initiator_final_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	counterpart_final_verified BOOLEAN NOT NULL DEFAULT FALSE,
	initiator_attempts         INTEGER NOT NULL DEFAULT 0,
	counterpart_attempts       INTEGER NOT NULL DEFAULT 0,
	qr_payload                 TEXT,
	qr_expires_at              TIMESTAMPTZ,
	review_checkpoint          TEXT,
	review_role                TEXT,
	review_reason              TEXT,
	resume_status              TEXT,
	manual_review_outcome      TEXT,
	reviewed_by                TEXT,
	verification_method        TEXT NOT NULL DEFAULT 'automated',
	encounter_id               UUID,
	version                    BIGINT NOT NULL DEFAULT 1,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	joined_at                  TIMESTAMPTZ,
	completed_at               TIMESTAMPTZ,
	CONSTRAINT completed_has_encounter CHECK ((status = 'completed') = (encounter_id IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_code
	ON vai_check_sessions(code) WHERE status NOT IN ('completed', 'declined');
CREATE INDEX IF NOT EXISTS idx_sessions_status ON vai_check_sessions(status);

CREATE TABLE IF NOT EXISTS encounters (
	id             UUID PRIMARY KEY,
	session_id     UUID NOT NULL UNIQUE REFERENCES vai_check_sessions(id),
	initiator_id   TEXT NOT NULL,
	counterpart_id TEXT NOT NULL,
	completed_at   TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the tables the service needs if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
