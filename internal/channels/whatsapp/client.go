package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v21.0"
	defaultHTTPTimeout  = 30 * time.Second
	uploadHTTPTimeout   = 60 * time.Second
	maxMediaBytes       = 25 << 20
)

// Client talks to the WhatsApp Cloud API (Meta Graph API). Messages are
// always sent through the phone number ID, never the WABA ID.
type Client struct {
	token         string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
	uploadClient  *http.Client
}

// NewClient creates a new Cloud API client for the given sending identity.
func NewClient(token, phoneNumberID string) *Client {
	return &Client{
		token:         token,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		uploadClient:  &http.Client{Timeout: uploadHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

// SendText sends a plain text message to the given phone number.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	req := sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	}
	return c.postJSON(ctx, c.messagesURL(), req)
}

// SendAudio uploads the audio bytes and sends them as a voice note.
// The MIME type must be one the platform accepts.
func (c *Client) SendAudio(ctx context.Context, to string, audio []byte, mimeType string) error {
	mediaID, err := c.UploadMedia(ctx, audio, mimeType)
	if err != nil {
		return err
	}
	req := sendAudioRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "audio",
		Audio:            mediaRef{ID: mediaID},
	}
	return c.postJSON(ctx, c.messagesURL(), req)
}

// MarkRead flags an inbound message as read. Best effort; callers ignore
// the error.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	req := markReadRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	}
	return c.postJSON(ctx, c.messagesURL(), req)
}

// UploadMedia pushes audio bytes to the Graph API media endpoint and
// returns the assigned media ID.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("whatsapp: build upload form: %w", err)
	}
	if err := mw.WriteField("type", mimeType); err != nil {
		return "", fmt.Errorf("whatsapp: build upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", "audio"+extensionFor(mimeType))
	if err != nil {
		return "", fmt.Errorf("whatsapp: build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("whatsapp: build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whatsapp: build upload form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/media", c.graphAPIBase, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("whatsapp: create upload request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whatsapp: upload media: %w", err)
	}
	defer resp.Body.Close()

	var upload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		return "", fmt.Errorf("whatsapp: decode upload response: %w", err)
	}
	if upload.Error != nil {
		return "", fmt.Errorf("whatsapp: upload error %d: %s", upload.Error.Code, upload.Error.Message)
	}
	if upload.ID == "" {
		return "", fmt.Errorf("whatsapp: upload returned no media id (status %d)", resp.StatusCode)
	}
	return upload.ID, nil
}

// DownloadMedia fetches inbound media bytes: the media ID resolves to a
// short-lived URL which is then downloaded with the same credentials.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	lookupURL := fmt.Sprintf("%s/%s", c.graphAPIBase, mediaID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: create media lookup: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: media lookup: %w", err)
	}
	defer resp.Body.Close()

	var lookup mediaLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, "", fmt.Errorf("whatsapp: decode media lookup: %w", err)
	}
	if lookup.Error != nil {
		return nil, "", fmt.Errorf("whatsapp: media lookup error %d: %s", lookup.Error.Code, lookup.Error.Message)
	}
	if lookup.URL == "" {
		return nil, "", fmt.Errorf("whatsapp: media %s has no download url", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: create media download: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.token)

	dlResp, err := c.uploadClient.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: media download: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whatsapp: media download status %d", dlResp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(dlResp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: read media: %w", err)
	}
	return data, lookup.MimeType, nil
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
}

func (c *Client) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("whatsapp: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp sendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}
	if sendResp.Error != nil {
		return fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/aac":
		return ".aac"
	case "audio/amr":
		return ".amr"
	default:
		return ""
	}
}
