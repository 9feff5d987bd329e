package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Client wraps the WhatsApp Cloud API send and media endpoints. It implements
// service.Messenger.
type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	httpClient    *http.Client
	maxRetries    int
}

// NewClient creates a new chat transport client
func NewClient() *Client {
	token := os.Getenv("WHATSAPP_TOKEN")
	if token == "" {
		log.Println("Warning: WHATSAPP_TOKEN not set")
	}
	phoneNumberID := os.Getenv("WHATSAPP_PHONE_ID")
	if phoneNumberID == "" {
		log.Println("Warning: WHATSAPP_PHONE_ID not set")
	}
	baseURL := os.Getenv("WHATSAPP_API_URL")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}

	return &Client{
		baseURL:       baseURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers one text message to a respondent
func (c *Client) SendText(ctx context.Context, to, text string) error {
	body, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/%s/messages", c.phoneNumberID)
	_, err = c.doRequest(ctx, "POST", path, body)
	return err
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// DownloadMedia resolves a media ID to its download URL and fetches the bytes
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	data, err := c.doRequest(ctx, "GET", "/"+mediaID, nil)
	if err != nil {
		return nil, "", err
	}

	var info mediaInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, "", fmt.Errorf("media info parse: %w", err)
	}
	if info.URL == "" {
		return nil, "", fmt.Errorf("media %s has no download URL", mediaID)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", info.URL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return audio, info.MimeType, nil
}

// doRequest performs an API request with bounded retries on server errors
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Chat] retry %d/%d for %s %s", attempt, c.maxRetries-1, method, path)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("chat API status %d: %s", resp.StatusCode, data)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("chat API status %d: %s", resp.StatusCode, data)
		}
		return data, nil
	}

	return nil, fmt.Errorf("chat API %s %s failed after %d attempts: %w", method, path, c.maxRetries, lastErr)
}
