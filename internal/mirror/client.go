// Package mirror is the client side of the draft service: an HTTP API client
// and a local mirror that takes over when the server cannot be reached.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/emlanis/secret-ai-writer/internal/exchange"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/rs/zerolog"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the draft service HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("mirror: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("mirror: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     config.Logger,
	}, nil
}

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NetworkError means the server could not be used at all: the request never
// completed, the server answered 5xx, or the body was not JSON.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err should trigger the local mirror.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// APIError is a 4xx answer carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Store saves a draft on the server.
func (c *Client) Store(ctx context.Context, userAddress, content string, metadata map[string]interface{}) (*models.StoreResult, error) {
	var out models.StoreResult
	err := c.postJSON(ctx, "store", "/api/store-draft", map[string]interface{}{
		"content":      content,
		"user_address": userAddress,
		"metadata":     metadata,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveLatest fetches the newest draft.
func (c *Client) RetrieveLatest(ctx context.Context, userAddress string) (*models.LatestResult, error) {
	var out models.LatestResult
	if err := c.postJSON(ctx, "retrieve", "/api/retrieve-draft", map[string]string{"user_address": userAddress}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveAll fetches every draft, newest first.
func (c *Client) RetrieveAll(ctx context.Context, userAddress string) (*models.ListResult, error) {
	var out models.ListResult
	if err := c.postJSON(ctx, "retrieve_all", "/api/retrieve-all-drafts", map[string]string{"user_address": userAddress}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a draft by id.
func (c *Client) Delete(ctx context.Context, userAddress, draftID string) (*models.RemoveResult, error) {
	var out models.RemoveResult
	err := c.postJSON(ctx, "delete", "/api/delete-draft", map[string]string{
		"user_address": userAddress,
		"draft_id":     draftID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate asks the server to write new content.
func (c *Client) Generate(ctx context.Context, userAddress, prompt, systemInstruction string) (*models.GenerationResult, error) {
	var out models.GenerationResult
	err := c.postJSON(ctx, "generate", "/api/generate", map[string]string{
		"prompt":             prompt,
		"user_address":       userAddress,
		"system_instruction": systemInstruction,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Enhance asks the server to rewrite text.
func (c *Client) Enhance(ctx context.Context, userAddress, text, enhancementType string) (*models.GenerationResult, error) {
	var out models.GenerationResult
	err := c.postJSON(ctx, "enhance", "/api/enhance", map[string]string{
		"draft_text":       text,
		"enhancement_type": enhancementType,
		"user_address":     userAddress,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads a draft file. The filename comes from Content-Disposition.
func (c *Client) Export(ctx context.Context, userAddress, draftID, format string) (*exchange.File, error) {
	raw, err := json.Marshal(map[string]string{
		"user_address": userAddress,
		"draft_id":     draftID,
		"format":       format,
	})
	if err != nil {
		return nil, fmt.Errorf("export: encode request: %w", err)
	}
	resp, body, err := c.do(ctx, "export", http.MethodPost, "/api/export-draft", "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	file := &exchange.File{
		Filename:    "draft." + format,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		file.Filename = params["filename"]
	}
	return file, nil
}

// Import uploads a draft file and returns the parsed title and content.
func (c *Client) Import(ctx context.Context, filename string, data []byte) (*exchange.Imported, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("import: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("import: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("import: build form: %w", err)
	}

	_, body, err := c.do(ctx, "import", http.MethodPost, "/api/import-draft", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	var out exchange.Imported
	if err := decodeBody("import", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server health document.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	_, body, err := c.do(ctx, "health", http.MethodGet, "/api/health", "", nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := decodeBody("health", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, request, out interface{}) error {
	raw, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	_, body, err := c.do(ctx, op, http.MethodPost, path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return decodeBody(op, body, out)
}

// do sends a request and classifies failures into NetworkError or APIError.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("request failed")
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(excerpt(data))}
	case resp.StatusCode >= 400:
		var env errorEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Error.Message == "" {
			return nil, nil, &APIError{Status: resp.StatusCode, Message: excerpt(data)}
		}
		return nil, nil, &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	return resp, data, nil
}

// decodeBody treats a body that is not JSON as a network failure.
func decodeBody(op string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("response is not JSON: %w", err)}
	}
	return nil
}

func excerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
