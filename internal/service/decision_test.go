package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

func TestRecordDecision(t *testing.T) {
	ctx := context.Background()

	t.Run("one accept waits for the other", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID

		v, err := f.svc.RecordDecision(ctx, id, provider, "", "accept")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusDecisionsPending, v.Status)
		assert.Equal(t, DispositionWait, v.Disposition)
	})

	t.Run("both accept advances to contract review", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID

		_, err := f.svc.RecordDecision(ctx, id, provider, "provider", "accept")
		require.NoError(t, err)
		v, err := f.svc.RecordDecision(ctx, id, client, "client", "ACCEPT")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusContractReview, v.Status)
		assert.Equal(t, DispositionAct, v.Disposition)
	})

	t.Run("identical repeat is idempotent", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID

		_, err := f.svc.RecordDecision(ctx, id, provider, "", "accept")
		require.NoError(t, err)
		version := f.session(t, id).Version

		v, err := f.svc.RecordDecision(ctx, id, provider, "", "accept")
		require.NoError(t, err)
		assert.Equal(t, model.DecisionAccept, v.InitiatorDecision)
		assert.Equal(t, version, f.session(t, id).Version)
	})

	t.Run("differing repeat conflicts", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID

		_, err := f.svc.RecordDecision(ctx, id, provider, "", "accept")
		require.NoError(t, err)

		_, err = f.svc.RecordDecision(ctx, id, provider, "", "decline")
		requireCode(t, err, apperrors.ErrCodeConflict)
		assert.Equal(t, model.DecisionAccept, f.session(t, id).InitiatorDecision)
	})

	t.Run("validates verdict and role", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID

		_, err := f.svc.RecordDecision(ctx, id, provider, "", "maybe")
		requireCode(t, err, apperrors.ErrCodeInvalidInput)

		_, err = f.svc.RecordDecision(ctx, id, provider, "chaperone", "accept")
		requireCode(t, err, apperrors.ErrCodeInvalidInput)

		_, err = f.svc.RecordDecision(ctx, id, provider, "counterpart", "accept")
		requireCode(t, err, apperrors.ErrCodeForbidden)

		_, err = f.svc.RecordDecision(ctx, id, stranger, "", "accept")
		requireCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("too early", func(t *testing.T) {
		f := newFixture(t)
		id := f.shown(t).SessionID

		_, err := f.svc.RecordDecision(ctx, id, provider, "", "accept")
		requireCode(t, err, apperrors.ErrCodeConflict)
	})
}

// Scenario B: an early decline freezes the session.
func TestRecordDecision_DeclineFreezesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.joined(t).SessionID

	v, err := f.svc.RecordDecision(ctx, id, provider, "", "decline")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusDeclined, v.Status)
	assert.Equal(t, DispositionDone, v.Disposition)

	before := f.session(t, id)

	_, err = f.svc.RecordDecision(ctx, id, client, "", "accept")
	requireCode(t, err, apperrors.ErrCodeConflict)

	_, err = f.svc.RecordContract(ctx, id, client, "", "accept")
	requireCode(t, err, apperrors.ErrCodeConflict)

	_, err = f.svc.SubmitFinalVerification(ctx, id, client, "", liveMatch)
	requireCode(t, err, apperrors.ErrCodeConflict)

	after := f.session(t, id)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, model.DecisionPending, after.CounterpartDecision)
	assert.False(t, after.CounterpartFinalVerified)
	assert.Nil(t, after.EncounterID)
}

func TestRecordContract(t *testing.T) {
	ctx := context.Background()

	t.Run("both accept opens final verification", func(t *testing.T) {
		f := newFixture(t)
		id := f.atFinal(t)

		v, err := f.svc.GetSessionStatus(ctx, id, client)
		require.NoError(t, err)
		assert.Equal(t, model.DecisionAccept, v.InitiatorContract)
		assert.Equal(t, model.DecisionAccept, v.CounterpartContract)
		assert.Equal(t, DispositionAct, v.Disposition)
	})

	t.Run("decline ends the session", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID
		_, err := f.svc.RecordDecision(ctx, id, provider, "", "accept")
		require.NoError(t, err)
		_, err = f.svc.RecordDecision(ctx, id, client, "", "accept")
		require.NoError(t, err)

		v, err := f.svc.RecordContract(ctx, id, client, "", "decline")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusDeclined, v.Status)

		_, err = f.svc.RecordContract(ctx, id, provider, "", "accept")
		requireCode(t, err, apperrors.ErrCodeConflict)
	})

	t.Run("not before decisions are in", func(t *testing.T) {
		f := newFixture(t)
		id := f.joined(t).SessionID

		_, err := f.svc.RecordContract(ctx, id, provider, "", "accept")
		requireCode(t, err, apperrors.ErrCodeConflict)
	})
}
