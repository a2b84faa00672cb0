package launchpad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("launchpad API error: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Is makes a 404 match tracker.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == tracker.ErrNotFound && e.StatusCode == http.StatusNotFound
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a Launchpad API client.
type Client struct {
	Credentials *Credentials
	BaseURL     string
	WebRoot     string
	HTTPClient  *http.Client
	Log         *slog.Logger
}

var _ tracker.Remote = (*Client)(nil)

// NewClient creates a new Launchpad client. Nil credentials give anonymous
// access.
func NewClient(creds *Credentials) *Client {
	return &Client{
		Credentials: creds,
		BaseURL:     DefaultAPIEndpoint,
		WebRoot:     DefaultWebRoot,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Log: slog.New(slog.DiscardHandler),
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

// WithBaseURL returns a new client with a custom API root (for testing or
// staging).
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &cp
}

// WithLogger returns a new client logging retries to log.
func (c *Client) WithLogger(log *slog.Logger) *Client {
	cp := *c
	cp.Log = log
	return &cp
}

// buildURL constructs a full API URL for a named operation.
func (c *Client) buildURL(path string, params url.Values) string {
	u := c.link(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryDelay
	return backoff.WithContext(backoff.WithMaxRetries(bo, MaxRetries), ctx)
}

// doRequest performs an authenticated request. Only GET requests are retried,
// on network errors, 429 and 5xx; mutations are left to an idempotent re-run.
func (c *Client) doRequest(ctx context.Context, method, urlStr, contentType string, body []byte) ([]byte, http.Header, error) {
	var (
		respBody []byte
		headers  http.Header
		attempt  int
	)
	op := func() error {
		attempt++
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if err := c.Credentials.authorize(req); err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed (attempt %d/%d): %w", attempt, MaxRetries+1, err)
		}
		defer func() { _ = resp.Body.Close() }()

		const maxResponseSize = 50 * 1024 * 1024
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("failed to read response (attempt %d/%d): %w", attempt, MaxRetries+1, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Method: method, URL: urlStr, StatusCode: resp.StatusCode, Body: string(data)}
			if !apiErr.retryable() {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}
		respBody, headers = data, resp.Header
		return nil
	}

	if method != http.MethodGet {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, nil, perm.Err
		}
		return respBody, headers, err
	}

	notify := func(err error, wait time.Duration) {
		c.Log.Debug("retrying launchpad request", "url", urlStr, "wait", wait, "err", err)
	}
	if err := backoff.RetryNotify(op, newRetryBackoff(ctx), notify); err != nil {
		return nil, nil, err
	}
	return respBody, headers, nil
}

// getJSON fetches urlStr into v. A JSON null body, which named operations
// return for missing objects, yields tracker.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, urlStr string, v any) error {
	data, _, err := c.doRequest(ctx, http.MethodGet, urlStr, "", nil)
	if err != nil {
		return err
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return tracker.ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", urlStr, err)
	}
	return nil
}

// getCollection fetches every page of a collection, following
// next_collection_link.
func getCollection[T any](ctx context.Context, c *Client, urlStr string) ([]T, error) {
	var all []T
	for urlStr != "" {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		var page collection[T]
		if err := c.getJSON(ctx, urlStr, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)
		urlStr = page.NextCollectionLink
	}
	return all, nil
}

// Project returns the named project.
func (c *Client) Project(ctx context.Context, name string) (*types.Project, error) {
	var res projectResource
	if err := c.getJSON(ctx, c.buildURL(url.PathEscape(name), nil), &res); err != nil {
		return nil, fmt.Errorf("project %s: %w", name, err)
	}
	return &types.Project{
		Name:  res.Name,
		Focus: lastSegment(res.DevelopmentFocusLink),
		Link:  res.SelfLink,
	}, nil
}

// Milestone returns a milestone of project by name.
func (c *Client) Milestone(ctx context.Context, project, name string) (*types.Milestone, error) {
	params := url.Values{"ws.op": {"getMilestone"}, "name": {name}}
	var res milestoneResource
	if err := c.getJSON(ctx, c.buildURL(url.PathEscape(project), params), &res); err != nil {
		return nil, fmt.Errorf("milestone %s/%s: %w", project, name, err)
	}
	return &types.Milestone{
		Project:  project,
		Name:     res.Name,
		Series:   lastSegment(res.SeriesTargetLink),
		IsActive: res.IsActive,
		Link:     res.SelfLink,
	}, nil
}

// Series returns a series of project by name.
func (c *Client) Series(ctx context.Context, project, name string) (*types.Series, error) {
	params := url.Values{"ws.op": {"getSeries"}, "name": {name}}
	var res seriesResource
	if err := c.getJSON(ctx, c.buildURL(url.PathEscape(project), params), &res); err != nil {
		return nil, fmt.Errorf("series %s/%s: %w", project, name, err)
	}
	return &types.Series{Project: project, Name: res.Name, Status: res.Status}, nil
}

// Issue returns a bug with all of its tasks.
func (c *Client) Issue(ctx context.Context, id int) (*types.Issue, error) {
	var bug bugResource
	if err := c.getJSON(ctx, c.buildURL("bugs/"+strconv.Itoa(id), nil), &bug); err != nil {
		return nil, fmt.Errorf("bug %d: %w", id, err)
	}
	tasksURL := bug.BugTasksCollectionLink
	if tasksURL == "" {
		tasksURL = c.buildURL("bugs/"+strconv.Itoa(id)+"/bug_tasks", nil)
	}
	tasks, err := getCollection[bugTaskResource](ctx, c, tasksURL)
	if err != nil {
		return nil, fmt.Errorf("bug %d tasks: %w", id, err)
	}

	issue := &types.Issue{ID: bug.ID, Title: bug.Title, WebLink: bug.WebLink, Tags: bug.Tags}
	if issue.ID == 0 {
		issue.ID = id
	}
	for i := range tasks {
		e := c.toEntry(&tasks[i])
		e.IssueID = issue.ID
		issue.Entries = append(issue.Entries, e)
	}
	return issue, nil
}

// AddEntry creates a bug task for target and returns it as created.
func (c *Client) AddEntry(ctx context.Context, issue *types.Issue, target string) (*types.Entry, error) {
	form := url.Values{"ws.op": {"addTask"}, "target": {c.link(target)}}
	_, headers, err := c.doRequest(ctx, http.MethodPost, c.buildURL("bugs/"+strconv.Itoa(issue.ID), nil),
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("adding %s task to bug %d: %w", target, issue.ID, err)
	}

	location := headers.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("adding %s task to bug %d: response has no Location", target, issue.ID)
	}
	var task bugTaskResource
	if err := c.getJSON(ctx, location, &task); err != nil {
		return nil, fmt.Errorf("reading new task %s: %w", location, err)
	}
	e := c.toEntry(&task)
	e.IssueID = issue.ID
	return e, nil
}

// SaveEntry writes the copy-fields of an existing bug task in one PATCH.
func (c *Client) SaveEntry(ctx context.Context, entry *types.Entry) error {
	if entry.Link == "" {
		return fmt.Errorf("entry %s of bug %d has no link", entry.Target, entry.IssueID)
	}
	body, err := json.Marshal(c.toPatch(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	if _, _, err := c.doRequest(ctx, http.MethodPatch, entry.Link, "application/json", body); err != nil {
		return fmt.Errorf("saving %s task of bug %d: %w", entry.Target, entry.IssueID, err)
	}
	return nil
}

// SearchEntries lists the bug tasks of project matching opts. No statuses
// means every status; searchTasks itself would return open tasks only.
func (c *Client) SearchEntries(ctx context.Context, project string, opts tracker.SearchOptions) ([]*types.Entry, error) {
	params := url.Values{
		"ws.op":           {"searchTasks"},
		"ws.size":         {strconv.Itoa(MaxPageSize)},
		"omit_duplicates": {"false"},
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = types.AllStatuses
	}
	for _, s := range statuses {
		params.Add("status", string(s))
	}
	if !opts.ModifiedSince.IsZero() {
		params.Set("modified_since", opts.ModifiedSince.UTC().Format(time.RFC3339))
	}

	tasks, err := getCollection[bugTaskResource](ctx, c, c.buildURL(url.PathEscape(project), params))
	if err != nil {
		return nil, fmt.Errorf("searching %s tasks: %w", project, err)
	}
	out := make([]*types.Entry, len(tasks))
	for i := range tasks {
		out[i] = c.toEntry(&tasks[i])
	}
	return out, nil
}

// WebLink returns the bug page URL.
func (c *Client) WebLink(id int) string {
	return strings.TrimSuffix(c.WebRoot, "/") + "/bugs/" + strconv.Itoa(id)
}
