// Package docai is the client for the document AI parsing service, the
// primary engine that turns uploaded files into markdown and structured
// fields.
package docai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// Client calls the document AI service over HTTP
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a document AI client from config
func NewClient(cfg models.DocAIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Available reports whether the client has a configured endpoint
func (c *Client) Available() bool {
	return c.baseURL != ""
}

// Markdown uploads a document and returns its markdown rendering.
func (c *Client) Markdown(ctx context.Context, file []byte, mimeType, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("mime_type", mimeType); err != nil {
		return "", fmt.Errorf("write mime field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/parse", &body)
	if err != nil {
		return "", fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("document AI parse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("document AI parse returned %d: %s", resp.StatusCode, msg)
	}

	var parsed struct {
		Markdown string `json:"markdown"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode parse response: %w", err)
	}
	return parsed.Markdown, nil
}

// ExtractStructured asks the service to extract fields from markdown
// according to a JSON schema.
func (c *Client) ExtractStructured(ctx context.Context, markdown string, schema map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(map[string]any{
		"markdown": markdown,
		"schema":   schema,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document AI extract request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("document AI extract returned %d: %s", resp.StatusCode, msg)
	}

	var result struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	return result.Data, nil
}

// FallbackText recovers readable lines directly from raw file bytes. It is
// the last resort when the document AI service is unreachable, good enough
// for text-based PDFs and plain text uploads.
func FallbackText(raw []byte) string {
	var lines []string
	var current strings.Builder

	flush := func() {
		line := strings.TrimSpace(current.String())
		current.Reset()
		// Short fragments are usually binary noise
		if len(line) >= 3 {
			lines = append(lines, line)
		}
	}

	for _, r := range string(raw) {
		switch {
		case r == '\n':
			flush()
		case unicode.IsPrint(r):
			current.WriteRune(r)
		default:
			current.WriteRune(' ')
		}
	}
	flush()

	return strings.Join(lines, "\n")
}
