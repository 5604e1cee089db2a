package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nightdesk/nightdesk/errors"
	"github.com/nightdesk/nightdesk/internal/httpclient"
)

// GitHubProvider implements ProviderAPI over the GitHub repository hooks
// REST API. A resource is an "owner/repo" string.
type GitHubProvider struct {
	baseURL string
	token   string
	client  *httpclient.SaferClient
}

// NewGitHubProvider creates a provider. baseURL defaults to the public
// GitHub API when empty (override for GitHub Enterprise or tests).
func NewGitHubProvider(baseURL, token string) *GitHubProvider {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubProvider{
		baseURL: baseURL,
		token:   token,
		client:  httpclient.NewSaferClient(15 * time.Second),
	}
}

type githubHook struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
	Config struct {
		URL string `json:"url"`
	} `json:"config"`
}

// List returns the active hooks on a repository.
func (p *GitHubProvider) List(ctx context.Context, resource string) ([]Registration, error) {
	body, err := p.do(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/hooks", p.baseURL, resource), nil)
	if err != nil {
		return nil, err
	}

	var hooks []githubHook
	if err := json.Unmarshal(body, &hooks); err != nil {
		return nil, errors.Wrap(err, "failed to decode hooks response")
	}

	regs := make([]Registration, 0, len(hooks))
	for _, h := range hooks {
		if !h.Active {
			continue
		}
		regs = append(regs, Registration{
			ID:  strconv.FormatInt(h.ID, 10),
			URL: h.Config.URL,
		})
	}
	return regs, nil
}

// Create registers a web hook delivering JSON pushes to callbackURL.
func (p *GitHubProvider) Create(ctx context.Context, resource, callbackURL string) (*Registration, error) {
	payload := map[string]interface{}{
		"name":   "web",
		"active": true,
		"events": []string{"push", "pull_request", "issues"},
		"config": map[string]string{
			"url":          callbackURL,
			"content_type": "json",
		},
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode hook payload")
	}

	body, err := p.do(ctx, http.MethodPost, fmt.Sprintf("%s/repos/%s/hooks", p.baseURL, resource), reqBody)
	if err != nil {
		return nil, err
	}

	var hook githubHook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, errors.Wrap(err, "failed to decode created hook")
	}

	return &Registration{
		ID:  strconv.FormatInt(hook.ID, 10),
		URL: hook.Config.URL,
	}, nil
}

// Delete removes a hook from a repository.
func (p *GitHubProvider) Delete(ctx context.Context, resource, registrationID string) error {
	_, err := p.do(ctx, http.MethodDelete, fmt.Sprintf("%s/repos/%s/hooks/%s", p.baseURL, resource, registrationID), nil)
	return err
}

func (p *GitHubProvider) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "provider request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read provider response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrResourceNotFound, "%s %s", method, rawURL)
	case resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrapf(ErrForbidden, "%s %s", method, rawURL)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// GitHub reports "Hook already exists on this repository" as 422.
		return nil, errors.Wrapf(ErrConflict, "%s %s", method, rawURL)
	default:
		return nil, errors.Newf("provider returned %d for %s %s: %s", resp.StatusCode, method, rawURL, string(respBody))
	}
}
