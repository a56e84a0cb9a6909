package provisioning_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/provisioning"
)

type reconcilerFixture struct {
	engine   *fakeEngine
	chatbots *fakeChatbots
	events   *fakeEvents
	tenantID uuid.UUID

	reconciler *provisioning.StateReconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	logger := getTestLogger()
	eng := newFakeEngine()
	chatbots := newFakeChatbots()
	events := &fakeEvents{}

	return &reconcilerFixture{
		engine:   eng,
		chatbots: chatbots,
		events:   events,
		tenantID: uuid.New(),
		reconciler: provisioning.NewStateReconciler(
			chatbots, eng, provisioning.NewActivationRetrier(eng, zeroTiming(), logger), events, logger),
	}
}

// seedChatbot stores a row pointing at a live fake-engine workflow.
func (f *reconcilerFixture) seedChatbot(t *testing.T, storedActive, remoteActive bool) *models.ChatbotIntegration {
	t.Helper()

	workflowID := createTestWorkflow(t, f.engine)
	f.engine.workflows[workflowID].Active = remoteActive

	record := &models.ChatbotIntegration{
		ID:               uuid.New(),
		TenantID:         f.tenantID,
		Platform:         models.PlatformTelegram,
		RemoteWorkflowID: &workflowID,
		AIModel:          "gpt-4o",
		AITemperature:    0.7,
		Active:           storedActive,
	}
	f.chatbots.rows[record.ID] = record
	return record
}

func TestSetActiveDriftCorrectedBeforeIntent(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := getTestContext(f.tenantID)

	// Stored says active, the engine says inactive.
	record := f.seedChatbot(t, true, false)

	updated, err := f.reconciler.SetActive(ctx, record.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Nil(t, updated.LastError)

	// The correction to false was persisted before the activation success
	// persisted true.
	require.Len(t, f.chatbots.flagUpdates, 2)
	assert.False(t, f.chatbots.flagUpdates[0].active)
	assert.Nil(t, f.chatbots.flagUpdates[0].lastError)
	assert.True(t, f.chatbots.flagUpdates[1].active)
}

func TestSetActiveFailureKeepsReconciledFlagAndRecordsError(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedChatbot(t, true, false)
	f.engine.activationFailures = 99

	updated, err := f.reconciler.SetActive(ctx, record.ID, true)
	require.Error(t, err)

	// The caller still gets the best-known record.
	require.NotNil(t, updated)
	assert.False(t, updated.Active)
	require.NotNil(t, updated.LastError)

	stored, getErr := f.chatbots.GetByID(ctx, record.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Active)
	require.NotNil(t, stored.LastError)
}

func TestSetActiveInSyncSkipsCorrection(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedChatbot(t, false, false)

	updated, err := f.reconciler.SetActive(ctx, record.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Active)

	// Only the requested change was persisted, no correction.
	require.Len(t, f.chatbots.flagUpdates, 1)
	assert.True(t, f.chatbots.flagUpdates[0].active)
}

func TestSetActiveMissingWorkflowLeavesFlagUntouched(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedChatbot(t, true, true)
	delete(f.engine.workflows, *record.RemoteWorkflowID)

	// The drift check finds no workflow and proceeds; the explicit
	// deactivate then fails downstream.
	updated, err := f.reconciler.SetActive(ctx, record.ID, false)
	require.Error(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.Active)
	require.NotNil(t, updated.LastError)
}

func TestSetActiveDeactivate(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedChatbot(t, true, true)

	updated, err := f.reconciler.SetActive(ctx, record.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.False(t, f.engine.workflows[*record.RemoteWorkflowID].Active)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "chatbot.state_changed", f.events.events[0].Type)
	assert.False(t, f.events.events[0].Active)
}
