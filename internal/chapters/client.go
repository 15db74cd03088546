package chapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
)

const (
	maxResponseBytes = 1_000_000
	userAgent        = "chapter-generator/0.1"
	maxDetailWidth   = 180
)

// Client posts video links to the chapter-generation webhook.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSpace(endpoint),
	}
}

// NewClientWithHTTP uses hc as is.
func NewClientWithHTTP(endpoint string, hc *http.Client) *Client {
	return &Client{httpClient: hc, endpoint: strings.TrimSpace(endpoint)}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

type generateRequest struct {
	VideoURL   string  `json:"videoUrl"`
	LicenseKey *string `json:"licenseKey"`
}

type remoteErrorBody struct {
	Message string `json:"message"`
}

// Generate sends one request and returns the plain-text chapters.
func (c *Client) Generate(ctx context.Context, videoURL, licenseKey string) (string, error) {
	payload := generateRequest{VideoURL: videoURL}
	if licenseKey != "" {
		payload.LicenseKey = &licenseKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain, application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return "", &NetworkError{Err: fmt.Errorf("read webhook response: %w", err)}
	}
	oversized := len(respBody) > maxResponseBytes
	if oversized {
		respBody = respBody[:maxResponseBytes]
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", &RemoteError{
			StatusCode: res.StatusCode,
			Detail:     remoteErrorDetail(res, respBody),
		}
	}
	// A cut-off body is not a usable result.
	if oversized {
		return "", &RemoteError{
			StatusCode: res.StatusCode,
			Detail:     fmt.Sprintf("response exceeds %d bytes", maxResponseBytes),
		}
	}
	return string(respBody), nil
}

// remoteErrorDetail prefers a JSON "message" field, then the status text,
// then the raw body.
func remoteErrorDetail(res *http.Response, body []byte) string {
	var payload remoteErrorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}
	if text := statusText(res); text != "" {
		return text
	}
	if raw := summarizeBody(body); raw != "" {
		return raw
	}
	return fmt.Sprintf("HTTP %d", res.StatusCode)
}

func statusText(res *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if text == "" {
		text = http.StatusText(res.StatusCode)
	}
	return text
}

func summarizeBody(b []byte) string {
	return ansi.Truncate(strings.TrimSpace(strings.ToValidUTF8(string(b), "")), maxDetailWidth, "...")
}
