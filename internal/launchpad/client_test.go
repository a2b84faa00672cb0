package launchpad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// newTestClient starts srv and points a client at it.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(&Credentials{AccessToken: "tok", AccessSecret: "sec"}).WithBaseURL(srv.URL + "/devel")
	c.WebRoot = "https://bugs.example.test"
	return c, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient(t *testing.T) {
	c := NewClient(nil)
	assert.Equal(t, DefaultAPIEndpoint, c.BaseURL)
	assert.Equal(t, DefaultWebRoot, c.WebRoot)
	assert.Equal(t, DefaultTimeout, c.HTTPClient.Timeout)

	custom := &http.Client{Timeout: time.Second}
	c2 := c.WithHTTPClient(custom).WithBaseURL("https://api.staging.example/devel/")
	assert.Same(t, custom, c2.HTTPClient)
	assert.Equal(t, "https://api.staging.example/devel", c2.BaseURL)
	assert.Equal(t, DefaultAPIEndpoint, c.BaseURL, "builders must not modify the receiver")
}

func TestMapping(t *testing.T) {
	c := NewClient(nil)
	base := DefaultAPIEndpoint

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"relPath series", c.relPath(base + "/fuel/9.0"), "fuel/9.0"},
		{"relPath foreign", c.relPath("https://elsewhere/fuel"), "https://elsewhere/fuel"},
		{"link", c.link("/fuel/+milestone/8.0"), base + "/fuel/+milestone/8.0"},
		{"milestone", milestoneName(base + "/fuel/+milestone/8.0"), "8.0"},
		{"milestone empty", milestoneName(""), ""},
		{"person", personName(base + "/~jdoe"), "jdoe"},
		{"last segment", lastSegment(base + "/fuel/10.0/"), "10.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
	assert.Equal(t, 1234, bugIDFromLink(base+"/bugs/1234"))
	assert.Equal(t, 0, bugIDFromLink(base+"/bugs/x"))
}

func TestToEntryAndPatch(t *testing.T) {
	c := NewClient(nil)
	base := DefaultAPIEndpoint
	bt := &bugTaskResource{
		SelfLink:      base + "/fuel/9.0/+bug/100",
		BugLink:       base + "/bugs/100",
		TargetLink:    base + "/fuel/9.0",
		MilestoneLink: base + "/fuel/+milestone/9.1",
		Status:        "Confirmed",
		Importance:    "High",
		AssigneeLink:  base + "/~jdoe",
	}
	e := c.toEntry(bt)
	assert.Equal(t, &types.Entry{
		Link:       bt.SelfLink,
		IssueID:    100,
		Project:    "fuel",
		Target:     "fuel/9.0",
		Milestone:  "9.1",
		Status:     types.StatusConfirmed,
		Importance: types.ImportanceHigh,
		Assignee:   "jdoe",
	}, e)

	patch := c.toPatch(e)
	require.NotNil(t, patch.MilestoneLink)
	assert.Equal(t, base+"/fuel/+milestone/9.1", *patch.MilestoneLink)
	require.NotNil(t, patch.AssigneeLink)
	assert.Equal(t, base+"/~jdoe", *patch.AssigneeLink)

	e.Milestone = ""
	e.Assignee = ""
	data, err := json.Marshal(c.toPatch(e))
	require.NoError(t, err)
	assert.JSONEq(t, `{"milestone_link":null,"status":"Confirmed","importance":"High","assignee_link":null}`, string(data))
}

func TestClientProject(t *testing.T) {
	var auth string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/devel/fuel", r.URL.Path)
		writeJSON(t, w, map[string]string{
			"name":                   "fuel",
			"self_link":              "http://" + r.Host + "/devel/fuel",
			"development_focus_link": "http://" + r.Host + "/devel/fuel/10.0",
		})
	}))

	p, err := c.Project(context.Background(), "fuel")
	require.NoError(t, err)
	assert.Equal(t, "fuel", p.Name)
	assert.Equal(t, "10.0", p.Focus)
	assert.Equal(t, srv.URL+"/devel/fuel", p.Link)

	assert.True(t, strings.HasPrefix(auth, "OAuth "), "got %q", auth)
	assert.Contains(t, auth, `oauth_token="tok"`)
	assert.Contains(t, auth, `oauth_signature="&sec"`)
	assert.Contains(t, auth, `oauth_consumer_key="lp_release_migrator"`)
}

func TestClientNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("ws.op") {
		case "getMilestone":
			// Named operations answer null for unknown names.
			writeJSON(t, w, nil)
		default:
			http.Error(w, "Object: <Product 'nope'>, name: 'nope'", http.StatusNotFound)
		}
	}))

	_, err := c.Milestone(context.Background(), "fuel", "7.0")
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	_, err = c.Project(context.Background(), "nope")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientMilestoneAndSeries(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		base := "http://" + r.Host + "/devel"
		switch q.Get("ws.op") {
		case "getMilestone":
			assert.Equal(t, "8.0", q.Get("name"))
			writeJSON(t, w, map[string]any{
				"name":               "8.0",
				"self_link":          base + "/fuel/+milestone/8.0",
				"series_target_link": base + "/fuel/10.0",
				"is_active":          true,
			})
		case "getSeries":
			writeJSON(t, w, map[string]any{"name": "10.0", "status": "Active Development"})
		default:
			t.Errorf("unexpected request %s", r.URL)
		}
	}))

	m, err := c.Milestone(context.Background(), "fuel", "8.0")
	require.NoError(t, err)
	assert.Equal(t, "10.0", m.Series)
	assert.Equal(t, "fuel/10.0", m.SeriesTarget())
	assert.True(t, m.IsActive)

	s, err := c.Series(context.Background(), "fuel", "10.0")
	require.NoError(t, err)
	assert.Equal(t, "fuel/10.0", s.Target())
	assert.Equal(t, "Active Development", s.Status)
}

func TestClientIssuePaginatesTasks(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host + "/devel"
		switch r.URL.Path {
		case "/devel/bugs/100":
			writeJSON(t, w, map[string]any{
				"id":                        100,
				"title":                     "boom",
				"web_link":                  "https://bugs.example.test/bugs/100",
				"tags":                      []string{"wait-for-stable"},
				"bug_tasks_collection_link": base + "/bugs/100/bug_tasks",
			})
		case "/devel/bugs/100/bug_tasks":
			if r.URL.Query().Get("ws.start") == "" {
				writeJSON(t, w, map[string]any{
					"entries": []map[string]string{{
						"self_link":   base + "/fuel/+bug/100",
						"target_link": base + "/fuel",
						"status":      "New",
						"importance":  "Low",
					}},
					"next_collection_link": base + "/bugs/100/bug_tasks?ws.start=1",
				})
				return
			}
			writeJSON(t, w, map[string]any{
				"entries": []map[string]string{{
					"self_link":      base + "/fuel/9.0/+bug/100",
					"target_link":    base + "/fuel/9.0",
					"milestone_link": base + "/fuel/+milestone/6.9",
					"status":         "Triaged",
					"importance":     "High",
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	issue, err := c.Issue(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "boom", issue.Title)
	assert.True(t, issue.HasTag("wait-for-stable"))
	require.Len(t, issue.Entries, 2)
	assert.Equal(t, "fuel", issue.Entries[0].Target)
	assert.True(t, issue.Entries[0].IsProjectLevel())
	assert.Equal(t, "fuel/9.0", issue.Entries[1].Target)
	assert.Equal(t, "6.9", issue.Entries[1].Milestone)
	assert.Equal(t, 100, issue.Entries[1].IssueID)
}

func TestClientAddEntry(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host + "/devel"
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/devel/bugs/100":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "addTask", r.PostForm.Get("ws.op"))
			assert.Equal(t, base+"/fuel/9.0", r.PostForm.Get("target"))
			w.Header().Set("Location", base+"/fuel/9.0/+bug/100")
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/devel/fuel/9.0/+bug/100":
			writeJSON(t, w, map[string]string{
				"self_link":   base + "/fuel/9.0/+bug/100",
				"bug_link":    base + "/bugs/100",
				"target_link": base + "/fuel/9.0",
				"status":      "New",
				"importance":  "Undecided",
			})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL)
		}
	}))

	e, err := c.AddEntry(context.Background(), &types.Issue{ID: 100}, "fuel/9.0")
	require.NoError(t, err)
	assert.Equal(t, "fuel/9.0", e.Target)
	assert.Equal(t, "fuel", e.Project)
	assert.Equal(t, types.StatusNew, e.Status)
	assert.NotEmpty(t, e.Link)
}

func TestClientSaveEntry(t *testing.T) {
	var got map[string]any
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))

	err := c.SaveEntry(context.Background(), &types.Entry{
		Link:       srv.URL + "/devel/fuel/9.0/+bug/100",
		IssueID:    100,
		Project:    "fuel",
		Target:     "fuel/9.0",
		Milestone:  "fuel/+milestone/6.9-updates",
		Status:     types.StatusWontFix,
		Importance: types.ImportanceHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/devel/fuel/+milestone/6.9-updates", got["milestone_link"])
	assert.Equal(t, "Won't Fix", got["status"])
	assert.Equal(t, "High", got["importance"])
	assert.Nil(t, got["assignee_link"])

	err = c.SaveEntry(context.Background(), &types.Entry{IssueID: 1, Target: "fuel"})
	assert.Error(t, err)
}

func TestClientSearchEntries(t *testing.T) {
	since := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "searchTasks", q.Get("ws.op"))
		assert.Equal(t, []string{"New", "Confirmed"}, q["status"])
		assert.Equal(t, "2026-10-01T12:00:00Z", q.Get("modified_since"))
		base := "http://" + r.Host + "/devel"
		writeJSON(t, w, map[string]any{
			"total_size": 1,
			"entries": []map[string]string{{
				"self_link":   base + "/fuel/+bug/7",
				"bug_link":    base + "/bugs/7",
				"target_link": base + "/fuel",
				"status":      "New",
				"importance":  "Medium",
			}},
		})
	}))

	entries, err := c.SearchEntries(context.Background(), "fuel", tracker.SearchOptions{
		Statuses:      []types.Status{types.StatusNew, types.StatusConfirmed},
		ModifiedSince: since,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].IssueID)
	assert.Equal(t, "fuel", entries[0].Target)
}

func TestClientSearchEntriesDefaultsToAllStatuses(t *testing.T) {
	var got []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()["status"]
		assert.Empty(t, r.URL.Query().Get("modified_since"))
		writeJSON(t, w, map[string]any{"total_size": 0, "entries": []any{}})
	}))

	entries, err := c.SearchEntries(context.Background(), "fuel", tracker.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	want := make([]string, len(types.AllStatuses))
	for i, s := range types.AllStatuses {
		want[i] = string(s)
	}
	assert.Equal(t, want, got)
	assert.Contains(t, got, "Won't Fix")
	assert.Contains(t, got, "Fix Released")
}

func TestClientRetriesGet(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]string{"name": "fuel"})
	}))

	p, err := c.Project(context.Background(), "fuel")
	require.NoError(t, err)
	assert.Equal(t, "fuel", p.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryMutations(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))

	err := c.SaveEntry(context.Background(), &types.Entry{
		Link: srv.URL + "/devel/fuel/+bug/1", IssueID: 1, Project: "fuel", Target: "fuel",
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))

	_, err := c.Project(context.Background(), "fuel")
	require.Error(t, err)
	assert.NotErrorIs(t, err, tracker.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebLink(t *testing.T) {
	c := NewClient(nil)
	assert.Equal(t, "https://bugs.launchpad.net/bugs/42", c.WebLink(42))
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    *Credentials
		wantErr bool
	}{
		{
			name:    "full",
			content: "consumer_key = \"me\"\naccess_token = \"t\"\naccess_secret = \"s\"\n",
			want:    &Credentials{ConsumerKey: "me", AccessToken: "t", AccessSecret: "s"},
		},
		{
			name:    "default consumer",
			content: "access_token = \"t\"\naccess_secret = \"s\"\n",
			want:    &Credentials{ConsumerKey: DefaultConsumerKey, AccessToken: "t", AccessSecret: "s"},
		},
		{
			name:    "token without secret",
			content: "access_token = \"t\"\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			content: "access_token = ",
			wantErr: true,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, fmt.Sprintf("creds%d.toml", i))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			got, err := LoadCredentials(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := LoadCredentials(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestAnonymousCredentials(t *testing.T) {
	var nilCreds *Credentials
	assert.True(t, nilCreds.Anonymous())
	assert.True(t, (&Credentials{}).Anonymous())
	assert.False(t, (&Credentials{AccessToken: "t", AccessSecret: "s"}).Anonymous())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, nilCreds.authorize(req))
	assert.Empty(t, req.Header.Get("Authorization"))
}
