// Package walletpush is the HTTP client for the external wallet-pass
// issuing service. Credentials are passed per call so one process can serve
// many programs and tenants.
package walletpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Credentials identifies one program's template on the issuing service
type Credentials struct {
	APIKey     string
	TemplateID string
	// Endpoint overrides the client default when set (per-program regions).
	Endpoint string
}

// Client talks to the issuing service's REST API
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a new issuing-service client
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreatePassRequest creates a pass from a template for one visitor. UserRef
// is the platform's wallet-pass account id; the issuing service holds the
// visitor's contact details against it.
type CreatePassRequest struct {
	UserRef string            `json:"user_ref"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CreatePassResponse is the issuing service's reply to pass creation
type CreatePassResponse struct {
	SerialNumber string `json:"serial_number"`
	PassURL      string `json:"pass_url"`
	AppleURL     string `json:"apple_url,omitempty"`
	GoogleURL    string `json:"google_url,omitempty"`
}

// UpdateFieldRequest writes one field value; Push triggers the remote
// notification to the physical device.
type UpdateFieldRequest struct {
	Value string `json:"value"`
	Push  bool   `json:"push"`
}

type apiError struct {
	Message string `json:"message"`
}

// CreatePass creates a new pass and returns its serial and install links
func (c *Client) CreatePass(ctx context.Context, creds Credentials, req CreatePassRequest) (*CreatePassResponse, error) {
	url := fmt.Sprintf("%s/templates/%s/passes", c.baseURL(creds), creds.TemplateID)

	var resp CreatePassResponse
	if err := c.do(ctx, creds, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	if resp.SerialNumber == "" {
		return nil, fmt.Errorf("issuing service returned no serial number")
	}
	return &resp, nil
}

// UpdateField writes one field on an issued pass. push=true sends the
// remote notification; batched writers set it only on the last field.
func (c *Client) UpdateField(ctx context.Context, creds Credentials, serial, field, value string, push bool) error {
	url := fmt.Sprintf("%s/passes/%s/fields/%s", c.baseURL(creds), serial, field)
	return c.do(ctx, creds, http.MethodPut, url, UpdateFieldRequest{Value: value, Push: push}, nil)
}

func (c *Client) baseURL(creds Credentials) string {
	if creds.Endpoint != "" {
		return creds.Endpoint
	}
	return c.endpoint
}

func (c *Client) do(ctx context.Context, creds Credentials, method, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling issuing service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("issuing service returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("issuing service returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}
	return nil
}
