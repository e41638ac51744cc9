package model

import "strings"

type SessionStatus string

const (
	SessionStatusInitiated           SessionStatus = "initiated"
	SessionStatusQRShown             SessionStatus = "qr_shown"
	SessionStatusJoined              SessionStatus = "joined"
	SessionStatusDecisionsPending    SessionStatus = "decisions_pending"
	SessionStatusContractReview      SessionStatus = "contract_review"
	SessionStatusFinalVerification   SessionStatus = "final_verification"
	SessionStatusCompleted           SessionStatus = "completed"
	SessionStatusDeclined            SessionStatus = "declined"
	SessionStatusManualReviewPending SessionStatus = "manual_review_pending"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusDeclined
}

type Decision string

const (
	DecisionPending Decision = "pending"
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// ParseVerdict accepts only the two non-pending values a participant may submit.
func ParseVerdict(v string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(v))) {
	case DecisionAccept:
		return DecisionAccept, true
	case DecisionDecline:
		return DecisionDecline, true
	}
	return "", false
}

type Role string

const (
	RoleInitiator   Role = "initiator"
	RoleCounterpart Role = "counterpart"
)

// ParseRole also accepts the provider/client naming used by the mobile clients.
func ParseRole(v string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "initiator", "provider":
		return RoleInitiator, true
	case "counterpart", "client":
		return RoleCounterpart, true
	}
	return "", false
}

func (r Role) Other() Role {
	if r == RoleInitiator {
		return RoleCounterpart
	}
	return RoleInitiator
}

type Checkpoint string

const (
	CheckpointInitial Checkpoint = "initial"
	CheckpointFinal   Checkpoint = "final"
)

type ReviewOutcome string

const (
	ReviewApproved ReviewOutcome = "approved"
	ReviewRejected ReviewOutcome = "rejected"
)

func ParseReviewOutcome(v string) (ReviewOutcome, bool) {
	switch ReviewOutcome(strings.ToLower(strings.TrimSpace(v))) {
	case ReviewApproved:
		return ReviewApproved, true
	case ReviewRejected:
		return ReviewRejected, true
	}
	return "", false
}

type FailureReason string

const (
	FailureSystem       FailureReason = "system_failure"
	FailureVerification FailureReason = "failed_verification"
)

type VerificationMethod string

const (
	VerificationAutomated VerificationMethod = "automated"
	VerificationManual    VerificationMethod = "manual"
)
