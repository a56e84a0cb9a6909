package provisioning_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/provisioning"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

type teardownFixture struct {
	engine   *fakeEngine
	chatbots *fakeChatbots
	tenants  *fakeTenants
	events   *fakeEvents
	tenantID uuid.UUID

	deprovisioner *provisioning.Deprovisioner
}

func newTeardownFixture(t *testing.T) *teardownFixture {
	t.Helper()

	logger := getTestLogger()
	eng := newFakeEngine()
	chatbots := newFakeChatbots()
	tenantID := uuid.New()
	tenants := &fakeTenants{tenant: &models.Tenant{ID: tenantID, Name: "acme"}}
	events := &fakeEvents{}

	return &teardownFixture{
		engine:        eng,
		chatbots:      chatbots,
		tenants:       tenants,
		events:        events,
		tenantID:      tenantID,
		deprovisioner: provisioning.NewDeprovisioner(chatbots, tenants, eng, events, logger),
	}
}

// seedIntegration creates a chatbot row plus its remote workflow and
// credentials, sharing authID across calls when given.
func (f *teardownFixture) seedIntegration(t *testing.T, platform models.Platform, authID string) *models.ChatbotIntegration {
	t.Helper()
	ctx := getTestContext(f.tenantID)

	workflowID := createTestWorkflow(t, f.engine)
	platformCred, err := f.engine.CreateCredential(ctx, &engine.Credential{Name: string(platform), Type: "telegramApi"})
	require.NoError(t, err)

	if _, ok := f.engine.credentials[authID]; !ok {
		f.engine.credentials[authID] = &engine.Credential{ID: authID, Name: "shared-auth", Type: provisioning.AuthCredentialType}
	}
	f.tenants.tenant.SharedAuthCredentialID = &authID

	record := &models.ChatbotIntegration{
		ID:                         uuid.New(),
		TenantID:                   f.tenantID,
		Platform:                   platform,
		RemoteWorkflowID:           &workflowID,
		RemotePlatformCredentialID: &platformCred.ID,
		RemoteAuthCredentialID:     &authID,
		AIModel:                    "gpt-4o",
		Active:                     true,
	}
	f.chatbots.rows[record.ID] = record
	return record
}

func TestDeprovisionSharedCredentialProtection(t *testing.T) {
	f := newTeardownFixture(t)
	ctx := getTestContext(f.tenantID)

	first := f.seedIntegration(t, models.PlatformTelegram, "auth-1")
	second := f.seedIntegration(t, models.PlatformWhatsApp, "auth-1")

	// Removing the first integration leaves the shared credential alone.
	require.NoError(t, f.deprovisioner.Deprovision(ctx, first.ID))
	_, sharedAlive := f.engine.credentials["auth-1"]
	assert.True(t, sharedAlive)
	assert.NotNil(t, f.tenants.tenant.SharedAuthCredentialID)

	// Removing the last integration deletes it and clears the reference.
	require.NoError(t, f.deprovisioner.Deprovision(ctx, second.ID))
	_, sharedAlive = f.engine.credentials["auth-1"]
	assert.False(t, sharedAlive)
	assert.Nil(t, f.tenants.tenant.SharedAuthCredentialID)

	count, _ := f.chatbots.CountForTenant(ctx)
	assert.Zero(t, count)
}

func TestDeprovisionRemoteFailuresAreBestEffort(t *testing.T) {
	f := newTeardownFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedIntegration(t, models.PlatformTelegram, "auth-1")
	f.engine.failDeleteWorkflow = errors.New("engine down")

	// The workflow delete fails, but the teardown still completes and
	// soft-deletes the row.
	require.NoError(t, f.deprovisioner.Deprovision(ctx, record.ID))

	_, err := f.chatbots.GetByID(ctx, record.ID)
	require.Error(t, err)
	assert.True(t, repositories.IsNotFound(err))
}

func TestDeprovisionRemoteAlreadyGone(t *testing.T) {
	f := newTeardownFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedIntegration(t, models.PlatformTelegram, "auth-1")
	delete(f.engine.workflows, *record.RemoteWorkflowID)
	delete(f.engine.credentials, *record.RemotePlatformCredentialID)

	// 404s from the engine are already-satisfied, not failures.
	require.NoError(t, f.deprovisioner.Deprovision(ctx, record.ID))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "chatbot.deprovisioned", f.events.events[0].Type)
}

func TestDeprovisionUnknownID(t *testing.T) {
	f := newTeardownFixture(t)
	ctx := getTestContext(f.tenantID)

	err := f.deprovisioner.Deprovision(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, repositories.IsNotFound(err))
}

func TestDeprovisionTwiceIs404(t *testing.T) {
	f := newTeardownFixture(t)
	ctx := getTestContext(f.tenantID)

	record := f.seedIntegration(t, models.PlatformTelegram, "auth-1")
	require.NoError(t, f.deprovisioner.Deprovision(ctx, record.ID))

	err := f.deprovisioner.Deprovision(ctx, record.ID)
	require.Error(t, err)
	assert.True(t, repositories.IsNotFound(err))
}
