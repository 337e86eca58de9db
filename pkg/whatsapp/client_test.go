package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatshub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(baseURL string) *models.Account {
	return &models.Account{
		Name:          "primary",
		PhoneNumberID: "555000",
		Token:         "tok-123",
		APIBaseURL:    baseURL,
		APIVersion:    "v19.0",
	}
}

func TestSendTextSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messaging_product": "whatsapp",
			"messages":          []map[string]string{{"id": "wamid.SENT1"}},
		})
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	id, err := c.SendText(context.Background(), testAccount(server.URL), "15551234", "hello")
	require.NoError(t, err)

	assert.Equal(t, "wamid.SENT1", id)
	assert.Equal(t, "/v19.0/555000/messages", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "text", gotPayload["type"])
	assert.Equal(t, "15551234", gotPayload["to"])
}

func TestSendTemplatePayload(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.TPL1"}},
		})
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	id, err := c.SendTemplate(context.Background(), testAccount(server.URL), "15551234", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "wamid.TPL1", id)

	assert.Equal(t, "template", gotPayload["type"])
	tpl := gotPayload["template"].(map[string]interface{})
	assert.Equal(t, "welcome", tpl["name"])
}

func TestSendProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "invalid recipient", "code": 131026},
		})
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	_, err := c.SendText(context.Background(), testAccount(server.URL), "bad", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestSendMissingMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"messages": []interface{}{}})
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	_, err := c.SendText(context.Background(), testAccount(server.URL), "15551234", "hello")
	require.Error(t, err)
}

func TestGetMediaInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/media-42", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(MediaInfo{
			URL:      "https://cdn.example/file",
			MimeType: "image/jpeg",
			FileSize: 1234,
			ID:       "media-42",
		})
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	info, err := c.GetMediaInfo(context.Background(), testAccount(server.URL), "media-42")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/file", info.URL)
	assert.Equal(t, "image/jpeg", info.MimeType)
}

func TestDownloadMedia(t *testing.T) {
	content := []byte("binary-media-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write(content)
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	data, err := c.DownloadMedia(context.Background(), testAccount(server.URL), server.URL+"/file")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestDownloadMediaExpiredURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(5*time.Second, 5*time.Second)
	_, err := c.DownloadMedia(context.Background(), testAccount(server.URL), server.URL+"/file")
	require.Error(t, err)
}
