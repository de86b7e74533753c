// Package mldiag calls the external skin-lesion classification service.
// The service is optional infrastructure: callers treat every failure here
// as a degraded (pending) diagnosis, never as a request failure.
package mldiag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrUnavailable wraps every failure mode of the diagnosis call: no endpoint
// configured, transport errors, non-200 responses, and malformed bodies.
var ErrUnavailable = errors.New("diagnosis service unavailable")

// DefaultTimeout bounds a single diagnosis call.
const DefaultTimeout = 30 * time.Second

// Result carries the probability pair returned by the classifier. Nil
// pointers mean the service omitted the value.
type Result struct {
	Malignant *float64 `json:"malignant"`
	Benign    *float64 `json:"benign"`
}

// Diagnoser produces a diagnosis for an uploaded case image.
type Diagnoser interface {
	Diagnose(ctx context.Context, image []byte, fileName, apiKey string) (*Result, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client used for diagnosis calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// Client posts case images to the configured classification endpoint. An
// empty URL disables the client; Diagnose then fails fast with
// ErrUnavailable.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint URL. A timeout of zero
// or less falls back to DefaultTimeout.
func NewClient(url string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enabled reports whether an endpoint URL is configured.
func (c *Client) Enabled() bool { return c.url != "" }

// diagnosisResponse mirrors the classifier's response body:
// {"diagnosis": [{"malignant": x, "benign": y}, ...]}.
type diagnosisResponse struct {
	Diagnosis []struct {
		Malignant *float64 `json:"malignant"`
		Benign    *float64 `json:"benign"`
	} `json:"diagnosis"`
}

// Diagnose sends the image as a multipart upload (field "file") with the
// doctor's API key in the access_token header and returns the first
// diagnosis element.
func (c *Client) Diagnose(ctx context.Context, image []byte, fileName, apiKey string) (*Result, error) {
	if c.url == "" {
		return nil, ErrUnavailable
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: building form: %v", ErrUnavailable, err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("%w: writing form: %v", ErrUnavailable, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing form: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("access_token", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) // drain
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed diagnosisResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(parsed.Diagnosis) == 0 {
		return nil, fmt.Errorf("%w: empty diagnosis list", ErrUnavailable)
	}

	first := parsed.Diagnosis[0]
	return &Result{Malignant: first.Malignant, Benign: first.Benign}, nil
}
