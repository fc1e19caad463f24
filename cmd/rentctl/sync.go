package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/storage"
)

type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type importResponse struct {
	Success bool                  `json:"success"`
	Data    []models.ReminderView `json:"data"`
	Error   string                `json:"error"`
	Errors  map[string]string     `json:"errors"`
}

// importReminders posts the batch to the account's reminder import endpoint.
func (c *apiClient) importReminders(ctx context.Context, req *models.ImportRemindersRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/reminders/import", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("import reminders: %w", err)
	}
	defer resp.Body.Close()

	var out importResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("import reminders: status %d: %w", resp.StatusCode, err)
	}
	if (resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK) || !out.Success {
		if len(out.Errors) > 0 {
			return 0, fmt.Errorf("import reminders: %s: %s", out.Error, formatErrors(out.Errors))
		}
		return 0, fmt.Errorf("import reminders: status %d: %s", resp.StatusCode, out.Error)
	}
	return len(out.Data), nil
}

// syncReminders uploads the local reminders and clears them once the server
// has accepted the whole batch.
func syncReminders(ctx context.Context, api *apiClient, store *storage.GuestReminderStore) (int, error) {
	req, err := store.ImportRequest()
	if err != nil {
		return 0, err
	}
	if len(req.Reminders) == 0 {
		return 0, nil
	}
	n, err := api.importReminders(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := store.Clear(); err != nil {
		return n, fmt.Errorf("imported but could not clear local reminders: %w", err)
	}
	return n, nil
}

// addFavorite posts one favorite. A listing that is already a favorite
// counts as added; one that was deleted reports added=false.
func (c *apiClient) addFavorite(ctx context.Context, propertyID string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/favorites/"+url.PathEscape(propertyID), nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("add favorite %s: %w", propertyID, err)
	}
	defer resp.Body.Close()

	var out models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("add favorite %s: status %d: %w", propertyID, resp.StatusCode, err)
	}
	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusConflict && out.Error == models.ErrTagAlreadyFavorited:
		return true, nil
	case resp.StatusCode == http.StatusNotFound && out.Error == models.ErrTagNotFound:
		return false, nil
	}
	return false, fmt.Errorf("add favorite %s: status %d: %s", propertyID, resp.StatusCode, out.Error)
}

// syncFavorites adds every local favorite to the account and clears the
// local set once all of them went through.
func syncFavorites(ctx context.Context, api *apiClient, favs *storage.GuestFavoriteStore) (int, error) {
	set, err := favs.List()
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}
	n := 0
	for _, id := range set {
		added, err := api.addFavorite(ctx, id)
		if err != nil {
			return n, err
		}
		if added {
			n++
		}
	}
	if err := favs.Clear(); err != nil {
		return n, fmt.Errorf("synced but could not clear local favorites: %w", err)
	}
	return n, nil
}
