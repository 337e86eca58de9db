package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"whatshub/internal/constants"
	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGatewayStore struct {
	accounts []models.Account
	logs     []*models.WebhookLog
}

func (m *mockGatewayStore) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	return m.accounts, nil
}

func (m *mockGatewayStore) SaveWebhookLog(ctx context.Context, log *models.WebhookLog) (int64, error) {
	m.logs = append(m.logs, log)
	return int64(len(m.logs)), nil
}

func (m *mockGatewayStore) GetWebhookLog(ctx context.Context, id int64) (*models.WebhookLog, error) {
	if id < 1 || int(id) > len(m.logs) {
		return nil, nil
	}
	entry := *m.logs[id-1]
	entry.ID = id
	return &entry, nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func setupGateway(t *testing.T, accounts ...models.Account) (*Gateway, *mockGatewayStore, *mockDispatcherStore) {
	t.Helper()
	store := &mockGatewayStore{accounts: accounts}
	dispStore := newMockDispatcherStore()
	dispStore.accounts["555000"] = &models.Account{Name: "primary", PhoneNumberID: "555000"}
	q := queue.New(1, 1, testLogger())
	dispatcher := NewDispatcher(dispStore, &mockMediaFetcher{}, q, &mockFlowPublisher{}, metrics.NewRegistry(), testLogger())
	gateway := NewGateway(store, q, dispatcher, metrics.NewRegistry(), testLogger())
	return gateway, store, dispStore
}

func headersWith(signature string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if signature != "" {
		h.Set(constants.SignatureHeader, signature)
	}
	return h
}

func TestHandlePayloadNoSecretsConfigured(t *testing.T) {
	gateway, store, _ := setupGateway(t, models.Account{Name: "open", Status: models.AccountActive})

	status, body := gateway.HandlePayload(context.Background(), []byte(`{"entry":[]}`), headersWith(""))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	require.Len(t, store.logs, 1)
	assert.Empty(t, store.logs[0].Error)
}

func TestHandlePayloadValidSignature(t *testing.T) {
	payload := []byte(`{"entry":[]}`)
	gateway, store, _ := setupGateway(t,
		models.Account{Name: "primary", AppSecret: "s3cret", Status: models.AccountActive})

	status, _ := gateway.HandlePayload(context.Background(), payload, headersWith(sign(payload, "s3cret")))
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, store.logs, 1)
	assert.Empty(t, store.logs[0].Error)
}

func TestHandlePayloadAnyAccountSecretMatches(t *testing.T) {
	payload := []byte(`{"entry":[]}`)
	gateway, _, _ := setupGateway(t,
		models.Account{Name: "first", AppSecret: "first-secret", Status: models.AccountActive},
		models.Account{Name: "second", AppSecret: "second-secret", Status: models.AccountActive},
	)

	status, _ := gateway.HandlePayload(context.Background(), payload, headersWith(sign(payload, "second-secret")))
	assert.Equal(t, http.StatusOK, status)
}

func TestHandlePayloadInvalidSignature(t *testing.T) {
	payload := []byte(`{"entry":[]}`)
	gateway, store, _ := setupGateway(t,
		models.Account{Name: "primary", AppSecret: "s3cret", Status: models.AccountActive})

	status, body := gateway.HandlePayload(context.Background(), payload, headersWith(sign(payload, "wrong")))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden", body)

	// Rejections are still audit-logged, with the reason.
	require.Len(t, store.logs, 1)
	assert.NotEmpty(t, store.logs[0].Error)
}

func TestHandlePayloadUnsignedPassesThrough(t *testing.T) {
	gateway, store, _ := setupGateway(t,
		models.Account{Name: "primary", AppSecret: "s3cret", Status: models.AccountActive})

	// Verification only applies to signed requests, even with secrets
	// configured.
	status, body := gateway.HandlePayload(context.Background(), []byte(`{}`), headersWith(""))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
	require.Len(t, store.logs, 1)
	assert.Empty(t, store.logs[0].Error)
}

func TestHandlePayloadMalformedSignatureHeader(t *testing.T) {
	gateway, _, _ := setupGateway(t,
		models.Account{Name: "primary", AppSecret: "s3cret", Status: models.AccountActive})

	status, _ := gateway.HandlePayload(context.Background(), []byte(`{}`), headersWith("sha256=zzzz-not-hex"))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"hello":"world"}`)

	assert.True(t, VerifySignature(body, sign(body, "secret"), "secret"))
	assert.False(t, VerifySignature(body, sign(body, "other"), "secret"))
	assert.False(t, VerifySignature(body, "md5=abcdef", "secret"))
	assert.False(t, VerifySignature(body, "", "secret"))
}

func TestReplayProcessesLoggedPayload(t *testing.T) {
	payload := []byte(`{
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "555000"},
			"messages": [{"from": "15551234", "id": "wamid.RP1", "type": "text", "text": {"body": "replayed"}}]
		}}]}]
	}`)
	gateway, store, dispStore := setupGateway(t, models.Account{Name: "open", Status: models.AccountActive})

	status, _ := gateway.HandlePayload(context.Background(), payload, headersWith(""))
	require.Equal(t, http.StatusOK, status)
	require.Len(t, store.logs, 1)

	require.NoError(t, gateway.Replay(context.Background(), 1))
	require.Len(t, dispStore.messages, 1)
	assert.Equal(t, "replayed", dispStore.messages[0].Body)

	// Replaying again is a no-op thanks to ingestion idempotence.
	require.NoError(t, gateway.Replay(context.Background(), 1))
	assert.Len(t, dispStore.messages, 1)
}

func TestReplayUnknownLog(t *testing.T) {
	gateway, _, _ := setupGateway(t)
	err := gateway.Replay(context.Background(), 42)
	require.Error(t, err)
}
