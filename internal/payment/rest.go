package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// restClient is the small JSON-over-HTTP helper shared by the Pagar.me and
// PagSeguro clients.
type restClient struct {
	provider string
	baseURL  string
	http     *http.Client
	auth     func(*http.Request)
}

func newRESTClient(provider, baseURL string, auth func(*http.Request)) restClient {
	return restClient{
		provider: provider,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 20 * time.Second},
		auth:     auth,
	}
}

// do sends in (if non-nil) as JSON and decodes a 2xx answer into out (if
// non-nil).  Non-2xx answers become *ProviderError.
func (c restClient) do(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		c.auth(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.provider, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Provider: c.provider, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s response: %w", c.provider, err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body.  Both
// processors use "message"; PagSeguro adds "error_messages".
func errorMessage(raw []byte) string {
	var e struct {
		Message       string `json:"message"`
		ErrorMessages []struct {
			Description string `json:"description"`
			Parameter   string `json:"parameter_name"`
		} `json:"error_messages"`
	}
	if json.Unmarshal(raw, &e) == nil {
		if len(e.ErrorMessages) > 0 {
			m := e.ErrorMessages[0]
			if m.Parameter != "" {
				return m.Parameter + ": " + m.Description
			}
			return m.Description
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}
