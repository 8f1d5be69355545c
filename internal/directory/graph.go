package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// GraphDirectory resolves group memberships from a Microsoft
// Graph-style directory endpoint. It exchanges client credentials for
// an access token and calls transitiveMemberOf for the user.
type GraphDirectory struct {
	tenantID     string
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	client       *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// GraphOption customizes a GraphDirectory.
type GraphOption func(*GraphDirectory)

// WithGraphBaseURL overrides the Graph API base URL.
func WithGraphBaseURL(u string) GraphOption {
	return func(d *GraphDirectory) { d.baseURL = strings.TrimRight(u, "/") }
}

// WithGraphTokenURL overrides the token endpoint, mainly for tests.
func WithGraphTokenURL(u string) GraphOption {
	return func(d *GraphDirectory) { d.tokenURL = u }
}

// NewGraphDirectory creates a directory client for the given tenant.
func NewGraphDirectory(tenantID, clientID, clientSecret string, opts ...GraphOption) *GraphDirectory {
	d := &GraphDirectory{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://graph.microsoft.com/v1.0",
		tokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		client:       &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (d *GraphDirectory) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && time.Now().Before(d.expires) {
		return d.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {d.clientID},
		"client_secret": {d.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("directory token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("directory token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("directory token response: %w", err)
	}

	d.token = tok.AccessToken
	// Refresh a minute early so in-flight requests never carry an
	// expired token.
	d.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return d.token, nil
}

type graphGroupsResponse struct {
	Value []struct {
		ODataType   string `json:"@odata.type"`
		DisplayName string `json:"displayName"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// UserGroups returns the display names of every group the user is a
// transitive member of. Pagination is followed; non-group directory
// objects in the result are skipped.
func (d *GraphDirectory) UserGroups(ctx context.Context, externalUserID string) ([]string, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var groups []string
	next := fmt.Sprintf("%s/users/%s/transitiveMemberOf?$select=displayName", d.baseURL, url.PathEscape(externalUserID))
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("directory group lookup: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			return nil, fmt.Errorf("directory group lookup: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var page graphGroupsResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("directory group response: %w", err)
		}

		for _, obj := range page.Value {
			if obj.ODataType != "" && obj.ODataType != "#microsoft.graph.group" {
				continue
			}
			if obj.DisplayName != "" {
				groups = append(groups, obj.DisplayName)
			}
		}
		next = page.NextLink
	}

	slog.Debug("directory.groups_resolved", "user", externalUserID, "count", len(groups))
	return groups, nil
}
