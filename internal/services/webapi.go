package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const webAPITimeout = 10 * time.Second

// WebAPIError is a non-success answer from a third-party HTTP API.
type WebAPIError struct {
	Service string
	Status  int
	Detail  string
}

func (e *WebAPIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Detail)
}

func defaultWebClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: webAPITimeout}
}

// callWebAPI sends req and decodes a 2xx JSON body into out (skipped when out
// is nil). Other statuses become a *WebAPIError carrying a short body excerpt.
func callWebAPI(ctx context.Context, client *http.Client, service string, req *http.Request, out interface{}) error {
	resp, err := defaultWebClient(client).Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &WebAPIError{Service: service, Status: resp.StatusCode, Detail: strings.TrimSpace(string(excerpt))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}
