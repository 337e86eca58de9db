package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatshub/internal/models"
)

// Client talks to the provider's Cloud API on behalf of an account. Each
// account carries its own base URL, API version and bearer token.
type Client interface {
	SendText(ctx context.Context, account *models.Account, to, body string) (string, error)
	SendTemplate(ctx context.Context, account *models.Account, to, template string) (string, error)
	GetMediaInfo(ctx context.Context, account *models.Account, mediaID string) (*MediaInfo, error)
	DownloadMedia(ctx context.Context, account *models.Account, url string) ([]byte, error)
}

type client struct {
	httpClient     *http.Client
	downloadClient *http.Client
}

// NewClient builds a client with separate timeouts for API calls and binary
// downloads.
func NewClient(apiTimeout, downloadTimeout time.Duration) Client {
	return &client{
		httpClient:     &http.Client{Timeout: apiTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
	}
}

func endpoint(account *models.Account, parts ...string) string {
	base := strings.TrimSuffix(account.APIBaseURL, "/")
	return base + "/" + account.APIVersion + "/" + strings.Join(parts, "/")
}

func (c *client) SendText(ctx context.Context, account *models.Account, to, body string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return c.send(ctx, account, payload)
}

func (c *client) SendTemplate(ctx context.Context, account *models.Account, to, template string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     template,
			"language": map[string]string{"code": "en"},
		},
	}
	return c.send(ctx, account, payload)
}

func (c *client) send(ctx context.Context, account *models.Account, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint(account, account.PhoneNumberID, "messages"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error != nil {
			return "", fmt.Errorf("provider rejected send (%d): %s", resp.StatusCode, result.Error.Message)
		}
		return "", fmt.Errorf("provider rejected send with status %d", resp.StatusCode)
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("provider accepted send but returned no message id")
	}
	return result.Messages[0].ID, nil
}

func (c *client) GetMediaInfo(ctx context.Context, account *models.Account, mediaID string) (*MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(account, mediaID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media info request returned status %d", resp.StatusCode)
	}

	var info MediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode media info: %w", err)
	}
	return &info, nil
}

func (c *client) DownloadMedia(ctx context.Context, account *models.Account, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.Token)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	return data, nil
}
