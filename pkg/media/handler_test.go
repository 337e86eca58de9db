package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/pkg/whatsapp"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProviderClient struct {
	info        *whatsapp.MediaInfo
	infoErr     error
	content     []byte
	downloadErr error
}

func (m *mockProviderClient) SendText(ctx context.Context, account *models.Account, to, body string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *mockProviderClient) SendTemplate(ctx context.Context, account *models.Account, to, template string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *mockProviderClient) GetMediaInfo(ctx context.Context, account *models.Account, mediaID string) (*whatsapp.MediaInfo, error) {
	return m.info, m.infoErr
}

func (m *mockProviderClient) DownloadMedia(ctx context.Context, account *models.Account, url string) ([]byte, error) {
	return m.content, m.downloadErr
}

type mockAttachmentStore struct {
	attachments map[string]string
}

func (m *mockAttachmentStore) SetAttachment(ctx context.Context, messageID, path string) error {
	m.attachments[messageID] = path
	return nil
}

func setupHandler(t *testing.T, client *mockProviderClient) (*Handler, *mockAttachmentStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := &mockAttachmentStore{attachments: make(map[string]string)}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	h, err := NewHandler(dir, client, store, logger, metrics.NewRegistry(), 5*time.Second, 5*time.Second)
	require.NoError(t, err)
	return h, store, dir
}

func bigPNG(t *testing.T) []byte {
	t.Helper()
	// Incompressible per-pixel noise so the encoded PNG exceeds the
	// 500 KiB compression threshold; seeded for determinism.
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, 2200, 1100))
	for y := 0; y < 1100; y++ {
		for x := 0; x < 2200; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFetchStoresDocumentVerbatim(t *testing.T) {
	content := []byte("%PDF-1.4 fake document")
	client := &mockProviderClient{
		info:    &whatsapp.MediaInfo{URL: "https://cdn.example/media/1", MimeType: "application/pdf"},
		content: content,
	}
	h, store, _ := setupHandler(t, client)

	h.Fetch(context.Background(), "msg-1", "media-1", "document", &models.Account{Name: "primary"})

	path, ok := store.attachments["msg-1"]
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestFetchCompressesOversizedImage(t *testing.T) {
	content := bigPNG(t)
	require.Greater(t, len(content), 500*1024, "fixture must exceed the compression threshold")

	client := &mockProviderClient{
		info:    &whatsapp.MediaInfo{URL: "https://cdn.example/media/2", MimeType: "image/png"},
		content: content,
	}
	h, store, _ := setupHandler(t, client)

	h.Fetch(context.Background(), "msg-2", "media-2", "image", &models.Account{Name: "primary"})

	path, ok := store.attachments["msg-2"]
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(path, ".jpg"))

	stored, err := os.ReadFile(path)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, img.Bounds().Dx(), 1920)
	assert.LessOrEqual(t, img.Bounds().Dy(), 1920)
}

func TestFetchKeepsSmallImageUntouched(t *testing.T) {
	small := []byte{0x89, 0x50, 0x4e, 0x47} // too small to compress, stored as-is
	client := &mockProviderClient{
		info:    &whatsapp.MediaInfo{URL: "https://cdn.example/media/3", MimeType: "image/png"},
		content: small,
	}
	h, store, _ := setupHandler(t, client)

	h.Fetch(context.Background(), "msg-3", "media-3", "image", &models.Account{Name: "primary"})

	path, ok := store.attachments["msg-3"]
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(path, ".png"))

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, small, stored)
}

func TestFetchMetadataFailureLeavesNoAttachment(t *testing.T) {
	client := &mockProviderClient{infoErr: fmt.Errorf("media expired")}
	h, store, dir := setupHandler(t, client)

	h.Fetch(context.Background(), "msg-4", "media-4", "image", &models.Account{Name: "primary"})

	assert.Empty(t, store.attachments)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchDownloadFailureLeavesNoAttachment(t *testing.T) {
	client := &mockProviderClient{
		info:        &whatsapp.MediaInfo{URL: "https://cdn.example/media/5", MimeType: "image/jpeg"},
		downloadErr: fmt.Errorf("403 from cdn"),
	}
	h, store, _ := setupHandler(t, client)

	h.Fetch(context.Background(), "msg-5", "media-5", "image", &models.Account{Name: "primary"})
	assert.Empty(t, store.attachments)
}
