// Package github talks to the GitHub REST API: releases, release assets,
// merged pull requests and closed issues.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/resilience"
)

// Client is a GitHub API client bound to one repository.
type Client struct {
	api    *gh.Client
	owner  string
	repo   string
	policy *resilience.Policy

	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint, for GitHub
// Enterprise or tests. Uploads use the same URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient replaces the token-authenticated transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPolicy sets the resilience policy wrapped around every API call.
func WithPolicy(p *resilience.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient creates a client for owner/repo. An empty token yields an
// unauthenticated client.
func NewClient(ctx context.Context, owner, repo, token string, opts ...Option) (*Client, error) {
	const op = "github.NewClient"

	if owner == "" || repo == "" {
		return nil, rperrors.Validation(op, "repository owner and name are required")
	}

	c := &Client{owner: owner, repo: repo}
	for _, opt := range opts {
		opt(c)
	}

	hc := c.httpClient
	if hc == nil && token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	c.api = gh.NewClient(hc)

	if c.baseURL != "" {
		base := c.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, rperrors.ConfigWrap(err, op, "invalid GitHub API URL")
		}
		c.api.BaseURL = u
		c.api.UploadURL = u
	}

	if c.policy == nil {
		c.policy = resilience.New("github", resilience.DefaultConfig())
	}
	return c, nil
}

// Repository returns "owner/name".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// Close releases the resilience policy.
func (c *Client) Close() error {
	return c.policy.Close()
}

// isNotFound reports whether err is a GitHub 404.
func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// apiError classifies a go-github error. Tokens are redacted from messages
// since go-github echoes request URLs.
func apiError(err error, op, msg string) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		status := ghErr.Response.StatusCode
		msg = fmt.Sprintf("%s (HTTP %d)", msg, status)
		if status == http.StatusNotFound {
			return rperrors.WrapSafe(err, rperrors.KindNotFound, op, msg)
		}
	}
	return rperrors.WrapSafe(err, rperrors.KindNetwork, op, msg)
}
