package model

import (
	"time"
)

type Session struct {
	ID            string        `db:"id" json:"id"`
	Code          string        `db:"code" json:"code"`
	InitiatorID   string        `db:"initiator_id" json:"initiatorId"`
	CounterpartID *string       `db:"counterpart_id" json:"counterpartId,omitempty"`
	Status        SessionStatus `db:"status" json:"status"`

	InitiatorDecision   Decision `db:"initiator_decision" json:"initiatorDecision"`
	CounterpartDecision Decision `db:"counterpart_decision" json:"counterpartDecision"`
	InitiatorContract   Decision `db:"initiator_contract" json:"initiatorContract"`
	CounterpartContract Decision `db:"counterpart_contract" json:"counterpartContract"`

	InitiatorVerified        bool `db:"initiator_verified" json:"initiatorVerified"`
	InitiatorFinalVerified   bool `db:"initiator_final_verified" json:"initiatorFinalVerified"`
	CounterpartFinalVerified bool `db:"counterpart_final_verified" json:"counterpartFinalVerified"`
	InitiatorAttempts        int  `db:"initiator_attempts" json:"-"`
	CounterpartAttempts      int  `db:"counterpart_attempts" json:"-"`

	QRPayload   *string    `db:"qr_payload" json:"-"`
	QRExpiresAt *time.Time `db:"qr_expires_at" json:"qrExpiresAt,omitempty"`

	ReviewCheckpoint    *Checkpoint        `db:"review_checkpoint" json:"reviewCheckpoint,omitempty"`
	ReviewRole          *Role              `db:"review_role" json:"reviewRole,omitempty"`
	ReviewReason        *FailureReason     `db:"review_reason" json:"reviewReason,omitempty"`
	ResumeStatus        *SessionStatus     `db:"resume_status" json:"-"`
	ManualReviewOutcome *ReviewOutcome     `db:"manual_review_outcome" json:"manualReviewOutcome,omitempty"`
	ReviewedBy          *string            `db:"reviewed_by" json:"-"`
	VerificationMethod  VerificationMethod `db:"verification_method" json:"verificationMethod"`

	EncounterID *string `db:"encounter_id" json:"encounterId,omitempty"`
	Version     int64   `db:"version" json:"version"`

	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	JoinedAt    *time.Time `db:"joined_at" json:"joinedAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

type CreateSessionParams struct {
	ID          string
	Code        string
	InitiatorID string
}

// Clone returns a deep copy so a transition can be computed without touching
// the value that was read from the store.
func (s *Session) Clone() *Session {
	c := *s
	c.CounterpartID = cloneRef(s.CounterpartID)
	c.QRPayload = cloneRef(s.QRPayload)
	c.QRExpiresAt = cloneRef(s.QRExpiresAt)
	c.ReviewCheckpoint = cloneRef(s.ReviewCheckpoint)
	c.ReviewRole = cloneRef(s.ReviewRole)
	c.ReviewReason = cloneRef(s.ReviewReason)
	c.ResumeStatus = cloneRef(s.ResumeStatus)
	c.ManualReviewOutcome = cloneRef(s.ManualReviewOutcome)
	c.ReviewedBy = cloneRef(s.ReviewedBy)
	c.EncounterID = cloneRef(s.EncounterID)
	c.JoinedAt = cloneRef(s.JoinedAt)
	c.CompletedAt = cloneRef(s.CompletedAt)
	return &c
}

func cloneRef[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RoleOf reports which role userID holds in the session.
func (s *Session) RoleOf(userID string) (Role, bool) {
	if userID == "" {
		return "", false
	}
	if s.InitiatorID == userID {
		return RoleInitiator, true
	}
	if s.CounterpartID != nil && *s.CounterpartID == userID {
		return RoleCounterpart, true
	}
	return "", false
}

func (s *Session) ParticipantID(role Role) string {
	if role == RoleInitiator {
		return s.InitiatorID
	}
	if s.CounterpartID == nil {
		return ""
	}
	return *s.CounterpartID
}

func (s *Session) DecisionOf(role Role) Decision {
	if role == RoleInitiator {
		return s.InitiatorDecision
	}
	return s.CounterpartDecision
}

func (s *Session) SetDecision(role Role, d Decision) {
	if role == RoleInitiator {
		s.InitiatorDecision = d
	} else {
		s.CounterpartDecision = d
	}
}

func (s *Session) ContractOf(role Role) Decision {
	if role == RoleInitiator {
		return s.InitiatorContract
	}
	return s.CounterpartContract
}

func (s *Session) SetContract(role Role, d Decision) {
	if role == RoleInitiator {
		s.InitiatorContract = d
	} else {
		s.CounterpartContract = d
	}
}

func (s *Session) FinalVerified(role Role) bool {
	if role == RoleInitiator {
		return s.InitiatorFinalVerified
	}
	return s.CounterpartFinalVerified
}

func (s *Session) SetFinalVerified(role Role) {
	if role == RoleInitiator {
		s.InitiatorFinalVerified = true
	} else {
		s.CounterpartFinalVerified = true
	}
}

func (s *Session) Attempts(role Role) int {
	if role == RoleInitiator {
		return s.InitiatorAttempts
	}
	return s.CounterpartAttempts
}

func (s *Session) SetAttempts(role Role, n int) {
	if role == RoleInitiator {
		s.InitiatorAttempts = n
	} else {
		s.CounterpartAttempts = n
	}
}

func (s *Session) BothFinalVerified() bool {
	return s.InitiatorFinalVerified && s.CounterpartFinalVerified
}

// QRExpired reports whether the rendezvous horizon has passed at now.
func (s *Session) QRExpired(now time.Time) bool {
	return s.QRExpiresAt != nil && !now.Before(*s.QRExpiresAt)
}

// ClearReview drops the interrupted-gate bookkeeping once a review resolves.
// The reason and outcome stay on the row for the participants to see.
func (s *Session) ClearReview() {
	s.ReviewCheckpoint = nil
	s.ReviewRole = nil
	s.ResumeStatus = nil
}
