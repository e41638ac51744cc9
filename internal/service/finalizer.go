package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

// finishIfReady moves a session whose last final flag was just set to
// completed and stamps the encounter id. It returns completeWrite when the
// caller must persist through the exactly-once path.
func finishIfReady(sess *model.Session, now time.Time) (writeKind, error) {
	if !sess.BothFinalVerified() {
		return saveWrite, nil
	}
	if err := sess.Advance(model.SessionStatusCompleted); err != nil {
		return skipWrite, err
	}
	id := uuid.NewString()
	sess.EncounterID = &id
	sess.CompletedAt = &now
	return completeWrite, nil
}

func encounterFor(sess *model.Session, now time.Time) *model.Encounter {
	enc := &model.Encounter{
		ID:          *sess.EncounterID,
		SessionID:   sess.ID,
		InitiatorID: sess.InitiatorID,
		CompletedAt: now,
		CreatedAt:   now,
	}
	if sess.CounterpartID != nil {
		enc.CounterpartID = *sess.CounterpartID
	}
	if sess.CompletedAt != nil {
		enc.CompletedAt = *sess.CompletedAt
	}
	return enc
}

func (s *SessionService) logEncounter(ctx context.Context, sess *model.Session) {
	log.Info().
		Str("sessionId", sess.ID).
		Str("encounterId", *sess.EncounterID).
		Msg("encounter created")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventEncounterCreated,
		SessionID: sess.ID,
		Details:   map[string]interface{}{"encounter_id": *sess.EncounterID},
	})
}
