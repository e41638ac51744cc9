package model

import "time"

type Encounter struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"sessionId"`
	InitiatorID   string    `db:"initiator_id" json:"initiatorId"`
	CounterpartID string    `db:"counterpart_id" json:"counterpartId"`
	CompletedAt   time.Time `db:"completed_at" json:"completedAt"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Identity is the read-only view of a participant's enrolment in the identity
// registry. The reference image never leaves the service.
type Identity struct {
	UserID             string `db:"user_id" json:"userId"`
	VerificationNumber string `db:"vai_number" json:"vaiNumber"`
	ReferenceImageURL  string `db:"biometric_photo_url" json:"-"`
}
