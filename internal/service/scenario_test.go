package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vairify/vaicheck-server-go/internal/model"
)

// Scenario A: the happy path from creation to encounter.
func TestSessionLifecycle_Completes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateSession(ctx, provider)
	require.NoError(t, err)
	id := created.SessionID

	shown, err := f.svc.CompleteInitialVerification(ctx, id, provider, liveMatch)
	require.NoError(t, err)
	require.NotNil(t, shown.QRPayload)

	joined, err := f.svc.JoinSession(ctx, JoinRequest{Code: shown.Code}, client)
	require.NoError(t, err)
	assert.Equal(t, id, joined.SessionID)

	steps := []struct {
		who, role string
		call      func(context.Context, string, string, string, string) (*StatusView, error)
	}{
		{provider, "provider", f.svc.RecordDecision},
		{client, "client", f.svc.RecordDecision},
		{client, "client", f.svc.RecordContract},
		{provider, "provider", f.svc.RecordContract},
	}
	for _, step := range steps {
		_, err := step.call(ctx, id, step.who, step.role, "accept")
		require.NoError(t, err)
	}

	_, err = f.svc.SubmitFinalVerification(ctx, id, client, "counterpart", liveMatch)
	require.NoError(t, err)

	waiting, err := f.svc.GetSessionStatus(ctx, id, client)
	require.NoError(t, err)
	assert.Equal(t, DispositionWait, waiting.Disposition)

	_, err = f.svc.SubmitFinalVerification(ctx, id, provider, "initiator", liveMatch)
	require.NoError(t, err)

	for _, who := range []string{provider, client} {
		v, err := f.svc.GetSessionStatus(ctx, id, who)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCompleted, v.Status)
		assert.Equal(t, DispositionDone, v.Disposition)
		require.NotNil(t, v.EncounterID)
		assert.Equal(t, model.VerificationAutomated, v.VerificationMethod)
	}
	assert.Equal(t, 1, f.store.EncounterCount(id))
}

func TestSubmitFinalVerification_ConcurrentRolesCreateOneEncounter(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		id := f.atFinal(t)

		var wg sync.WaitGroup
		views := make([]*StatusView, 2)
		errs := make([]error, 2)
		for n, who := range []string{provider, client} {
			wg.Add(1)
			go func(n int, who string) {
				defer wg.Done()
				views[n], errs[n] = f.svc.SubmitFinalVerification(context.Background(), id, who, "", liveMatch)
			}(n, who)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		sess := f.session(t, id)
		require.Equal(t, model.SessionStatusCompleted, sess.Status)
		require.NotNil(t, sess.EncounterID)
		assert.Equal(t, 1, f.store.EncounterCount(id))

		enc, err := f.store.Encounters().FindBySessionID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, enc)
		assert.Equal(t, *sess.EncounterID, enc.ID)

		for n, who := range []string{provider, client} {
			v := views[n]
			if v.Status != model.SessionStatusCompleted {
				// This caller committed first and returned before the other
				// role finished; its next poll carries the encounter.
				assert.Equal(t, DispositionWait, v.Disposition)
				v, err := f.svc.GetSessionStatus(context.Background(), id, who)
				require.NoError(t, err)
				views[n] = v
			}
			require.NotNil(t, views[n].EncounterID)
			assert.Equal(t, enc.ID, *views[n].EncounterID)
		}
	}
}

func TestSubmitFinalVerification_FirstWriterSeesCounterpartCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.atFinal(t)

	// The client's whole final check lands between the provider's flag write
	// and the provider's response.
	var counterpart *StatusView
	f.svc.sessions = &hookedSessions{
		SessionRepository: f.store.Sessions(),
		afterFirstSave: func() {
			v, err := f.svc.SubmitFinalVerification(ctx, id, client, "", liveMatch)
			require.NoError(t, err)
			counterpart = v
		},
	}

	first, err := f.svc.SubmitFinalVerification(ctx, id, provider, "", liveMatch)
	require.NoError(t, err)
	require.NotNil(t, counterpart)

	assert.Equal(t, model.SessionStatusCompleted, first.Status)
	assert.Equal(t, DispositionDone, first.Disposition)
	require.NotNil(t, first.EncounterID)
	require.NotNil(t, counterpart.EncounterID)
	assert.Equal(t, *counterpart.EncounterID, *first.EncounterID)
	assert.Equal(t, 1, f.store.EncounterCount(id))
}
