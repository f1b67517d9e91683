package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

const (
	defaultPDS       = "https://bsky.social"
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// Config controls the client. Zero values get defaults.
type Config struct {
	// PDS is the service base URL. Defaults to https://bsky.social.
	PDS string

	// PageLimit is the number of posts requested per feed page (max 100).
	PageLimit int

	// MaxRetries bounds read-path retries after the first attempt.
	MaxRetries int
}

// Client is a minimal BlueSky/AT Protocol API client covering the calls a
// sweep needs: createSession, getAuthorFeed, and deleteRecord.
type Client struct {
	pds        string
	pageLimit  int
	httpClient *http.Client

	// executor retries read calls (login, feed pages) on transient
	// failures. Deletes go out unretried; the deletion loop owns that
	// policy.
	executor failsafe.Executor[xrpcResponse]

	// populated after Login
	accessJwt string
	did       string
	handle    string
}

// xrpcResponse is a fully drained HTTP response, safe to re-run through a
// retry executor without body lifecycle concerns.
type xrpcResponse struct {
	status int
	header http.Header
	body   []byte
}

// NewClient creates a new BlueSky API client.
func NewClient(cfg Config) *Client {
	if cfg.PDS == "" {
		cfg.PDS = defaultPDS
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.PageLimit > maxPageLimit {
		cfg.PageLimit = maxPageLimit
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Client{
		pds:       strings.TrimSuffix(cfg.PDS, "/"),
		pageLimit: cfg.PageLimit,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		executor: newReadExecutor(cfg.MaxRetries, time.Second, 10*time.Second),
	}
}

// newReadExecutor builds the retry executor for read calls: exponential
// backoff with jitter, retrying network errors, 5xx, and 429.
func newReadExecutor(maxRetries int, baseDelay, maxDelay time.Duration) failsafe.Executor[xrpcResponse] {
	policy := retrypolicy.NewBuilder[xrpcResponse]().
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp xrpcResponse, err error) bool {
			if err != nil {
				return true
			}
			return resp.status == http.StatusTooManyRequests || resp.status >= 500
		}).
		ReturnLastFailure().
		Build()
	return failsafe.With(policy)
}

// Login authenticates with the PDS and stores the session token. Use an App
// Password, not your account password.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	resp, err := c.postRetried(ctx, "/xrpc/com.atproto.server.createSession", body)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return fmt.Errorf("create session: %s: %w", apiMessage(resp.status, resp.body), domain.ErrAuthFailed)
	}
	if resp.status < 200 || resp.status >= 300 {
		return fmt.Errorf("create session: API error (status %d): %s", resp.status, string(resp.body))
	}

	var session createSessionResponse
	if err := json.Unmarshal(resp.body, &session); err != nil {
		return fmt.Errorf("create session: unmarshal response: %w", err)
	}

	c.accessJwt = session.AccessJwt
	c.did = session.DID
	c.handle = session.Handle
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// Handle returns the authenticated user's handle. Only valid after Login.
func (c *Client) Handle() string {
	return c.handle
}

// ListPosts returns one page of the authenticated account's author feed via
// app.bsky.feed.getAuthorFeed. An empty cursor starts at the newest post.
func (c *Client) ListPosts(ctx context.Context, cursor string) (domain.Page, error) {
	if c.accessJwt == "" {
		return domain.Page{}, fmt.Errorf("not authenticated: call Login first")
	}

	params := url.Values{}
	params.Set("actor", c.did)
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	resp, err := c.getRetried(ctx, "/xrpc/app.bsky.feed.getAuthorFeed", params)
	if err != nil {
		return domain.Page{}, fmt.Errorf("get author feed: %w", err)
	}
	if resp.status < 200 || resp.status >= 300 {
		return domain.Page{}, fmt.Errorf("get author feed: API error (status %d): %s", resp.status, string(resp.body))
	}

	var feed feedResponse
	if err := json.Unmarshal(resp.body, &feed); err != nil {
		return domain.Page{}, fmt.Errorf("get author feed: unmarshal response: %w", err)
	}

	return feed.toPage(), nil
}

// DeletePost removes the record behind the post's URI via
// com.atproto.repo.deleteRecord. The call is made exactly once; failures
// come back classified for the caller's retry policy.
func (c *Client) DeletePost(ctx context.Context, post domain.Post) error {
	if c.accessJwt == "" {
		return &domain.PermanentError{Err: fmt.Errorf("not authenticated: call Login first")}
	}

	repo, collection, rkey, err := splitAtURI(post.URI)
	if err != nil {
		return &domain.PermanentError{Err: err}
	}

	body := deleteRecordRequest{
		Repo:       repo,
		Collection: collection,
		RKey:       rkey,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &domain.PermanentError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+"/xrpc/com.atproto.repo.deleteRecord", bytes.NewReader(payload))
	if err != nil {
		return &domain.PermanentError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyDeleteFailure(resp.StatusCode, resp.Header, respBody)
}

// postRetried sends a JSON POST through the read-path retry executor and
// returns the drained response.
func (c *Client) postRetried(ctx context.Context, path string, body any) (xrpcResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return xrpcResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	return c.executor.WithContext(ctx).Get(func() (xrpcResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
		if err != nil {
			return xrpcResponse{}, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.accessJwt != "" {
			req.Header.Set("Authorization", "Bearer "+c.accessJwt)
		}
		return c.send(req)
	})
}

// getRetried sends a GET through the read-path retry executor and returns
// the drained response.
func (c *Client) getRetried(ctx context.Context, path string, params url.Values) (xrpcResponse, error) {
	return c.executor.WithContext(ctx).Get(func() (xrpcResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pds+path+"?"+params.Encode(), nil)
		if err != nil {
			return xrpcResponse{}, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
		return c.send(req)
	})
}

func (c *Client) send(req *http.Request) (xrpcResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xrpcResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return xrpcResponse{}, fmt.Errorf("read response: %w", err)
	}

	return xrpcResponse{
		status: resp.StatusCode,
		header: resp.Header,
		body:   respBody,
	}, nil
}

// splitAtURI breaks an at-uri (at://repo/collection/rkey) into its parts.
func splitAtURI(uri string) (repo, collection, rkey string, err error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", "", "", fmt.Errorf("not an at-uri: %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed at-uri: %q", uri)
	}
	return parts[0], parts[1], parts[2], nil
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
}
