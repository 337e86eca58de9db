package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"whatshub/internal/metrics"
	"whatshub/internal/models"
	"whatshub/internal/security"
	"whatshub/pkg/whatsapp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AttachmentStore is the slice of the message store the pipeline needs.
type AttachmentStore interface {
	SetAttachment(ctx context.Context, messageID, path string) error
}

// Handler fetches provider media, optionally recompresses images, and
// attaches the stored file to the originating message. Failures are logged
// and swallowed: the message simply stays without an attachment.
type Handler struct {
	dir             string
	client          whatsapp.Client
	store           AttachmentStore
	logger          *logrus.Logger
	metrics         *metrics.Registry
	metadataTimeout time.Duration
	downloadTimeout time.Duration
}

func NewHandler(dir string, client whatsapp.Client, store AttachmentStore, logger *logrus.Logger, registry *metrics.Registry, metadataTimeout, downloadTimeout time.Duration) (*Handler, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Handler{
		dir:             dir,
		client:          client,
		store:           store,
		logger:          logger,
		metrics:         registry,
		metadataTimeout: metadataTimeout,
		downloadTimeout: downloadTimeout,
	}, nil
}

// Fetch runs the full pipeline for one media descriptor. kind is the
// declared content kind ("image", "audio", "video", "document"); only
// oversized images are recompressed.
func (h *Handler) Fetch(ctx context.Context, messageID, mediaID, kind string, account *models.Account) {
	log := h.logger.WithFields(logrus.Fields{
		"message": messageID,
		"media":   mediaID,
		"kind":    kind,
	})

	metaCtx, cancel := context.WithTimeout(ctx, h.metadataTimeout)
	defer cancel()
	info, err := h.client.GetMediaInfo(metaCtx, account, mediaID)
	if err != nil {
		h.metrics.Inc(metrics.MediaFailures)
		log.WithError(err).Error("Failed to fetch media metadata")
		return
	}

	dlCtx, cancelDL := context.WithTimeout(ctx, h.downloadTimeout)
	defer cancelDL()
	content, err := h.client.DownloadMedia(dlCtx, account, info.URL)
	if err != nil {
		h.metrics.Inc(metrics.MediaFailures)
		log.WithError(err).Error("Failed to download media")
		return
	}

	ext := ExtensionFromMime(info.MimeType)
	if kind == "image" && ShouldCompress(len(content)) {
		compressed, newExt, err := CompressImage(content)
		if err != nil {
			// Keep the original bytes when compression fails.
			log.WithError(err).Warn("Image compression failed, storing original")
		} else {
			content, ext = compressed, newExt
		}
	}

	path, err := h.Store(content, ext)
	if err != nil {
		h.metrics.Inc(metrics.MediaFailures)
		log.WithError(err).Error("Failed to store media file")
		return
	}

	if err := h.store.SetAttachment(ctx, messageID, path); err != nil {
		log.WithError(err).Error("Failed to attach media to message")
		return
	}

	h.metrics.Inc(metrics.MediaFetched)
	log.WithField("path", path).Info("Media attached")
}

// Store writes content under the media directory with a random name.
func (h *Handler) Store(content []byte, ext string) (string, error) {
	name := uuid.NewString() + "." + ext
	if err := security.ValidateFileName(name); err != nil {
		return "", err
	}
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, content, 0640); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return path, nil
}
