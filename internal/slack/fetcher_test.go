package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a scriptable stand-in for the platform's Web API.
type fakeAPI struct {
	srv *httptest.Server

	memberPages []memberPage
	pageReads   int

	channels       []Channel
	channelCursors []string // cursor returned after each catalog page
	catalogReads   int

	users       map[string]User
	failUsers   map[string]bool
	channelErr  string // error code for conversations.info, "" for ok
	membersErr  string // error code for conversations.members
}

type memberPage struct {
	ids    []string
	cursor string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		users:     make(map[string]User),
		failUsers: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.info", func(w http.ResponseWriter, r *http.Request) {
		if f.channelErr != "" {
			writeJSON(w, map[string]any{"ok": false, "error": f.channelErr})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "channel": Channel{ID: r.URL.Query().Get("channel")}})
	})
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		page := f.catalogReads
		f.catalogReads++

		cursor := ""
		if page < len(f.channelCursors) {
			cursor = f.channelCursors[page]
		}

		var channels []Channel
		if page == len(f.channelCursors) || len(f.channelCursors) == 0 {
			channels = f.channels
		}

		writeJSON(w, map[string]any{
			"ok":                true,
			"channels":          channels,
			"response_metadata": map[string]string{"next_cursor": cursor},
		})
	})
	mux.HandleFunc("/conversations.members", func(w http.ResponseWriter, r *http.Request) {
		if f.membersErr != "" {
			writeJSON(w, map[string]any{"ok": false, "error": f.membersErr})
			return
		}

		page := f.pageReads
		f.pageReads++
		require.Less(t, page, len(f.memberPages), "fetched past the final page")

		writeJSON(w, map[string]any{
			"ok":                true,
			"members":           f.memberPages[page].ids,
			"response_metadata": map[string]string{"next_cursor": f.memberPages[page].cursor},
		})
	})
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("user")
		if f.failUsers[id] {
			writeJSON(w, map[string]any{"ok": false, "error": "user_not_found"})
			return
		}
		user, ok := f.users[id]
		if !ok {
			user = User{ID: id, RealName: "Member " + id}
			user.Profile.Email = id + "@example.com"
		}
		writeJSON(w, map[string]any{"ok": true, "user": user})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) fetcher() *Fetcher {
	return NewFetcher(NewClient("xoxb-test", WithBaseURL(f.srv.URL)))
}

func idRange(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%04d", prefix, i)
	}
	return ids
}

func TestListChannelMembersPagination(t *testing.T) {
	f := newFakeAPI(t)
	f.memberPages = []memberPage{
		{ids: idRange("UA", 1000), cursor: "c1"},
		{ids: idRange("UB", 1000), cursor: "c2"},
		{ids: idRange("UC", 42), cursor: ""},
	}

	result := f.fetcher().ListChannelMembers(context.Background(), "C0123ABCD")

	require.True(t, result.OK(), "unexpected failure: %s %s", result.ErrorCode, result.Detail)
	assert.Len(t, result.Members, 2042)
	assert.Equal(t, 3, f.pageReads, "must terminate after exactly 3 page reads")
}

func TestListChannelMembersStalledCursor(t *testing.T) {
	f := newFakeAPI(t)
	f.memberPages = []memberPage{
		{ids: idRange("UA", 2), cursor: "stuck"},
		{ids: idRange("UA", 2), cursor: "stuck"},
	}

	result := f.fetcher().ListChannelMembers(context.Background(), "C0123ABCD")

	require.False(t, result.OK())
	assert.Equal(t, ErrMembersFetch, result.ErrorCode)
	assert.Contains(t, result.Detail, "stalled")
}

func TestResolveChannelByName(t *testing.T) {
	f := newFakeAPI(t)
	f.channels = []Channel{
		{ID: "C0AAAAAAA", Name: "general"},
		{ID: "C0TEAMCHS", Name: "Team-Standup"},
	}
	f.memberPages = []memberPage{
		{ids: []string{"U001"}, cursor: ""},
	}

	// Names compare case-insensitively.
	result := f.fetcher().ListChannelMembers(context.Background(), "team-standup")

	require.True(t, result.OK(), "unexpected failure: %s %s", result.ErrorCode, result.Detail)
	assert.Len(t, result.Members, 1)
}

func TestResolveChannelNameNotFound(t *testing.T) {
	f := newFakeAPI(t)
	f.channels = []Channel{{ID: "C0AAAAAAA", Name: "general"}}

	result := f.fetcher().ListChannelMembers(context.Background(), "no-such-channel")

	require.False(t, result.OK())
	assert.Equal(t, ErrChannelNotFound, result.ErrorCode)
	assert.Contains(t, result.Detail, "no-such-channel")
}

func TestMissingToken(t *testing.T) {
	f := newFakeAPI(t)
	fetcher := NewFetcher(NewClient("", WithBaseURL(f.srv.URL)))

	result := fetcher.ListChannelMembers(context.Background(), "C0123ABCD")

	require.False(t, result.OK())
	assert.Equal(t, ErrMissingToken, result.ErrorCode)
}

func TestAPIErrorMapping(t *testing.T) {
	cases := []struct {
		apiErr string
		code   ErrorCode
	}{
		{"invalid_auth", ErrInvalidAuth},
		{"missing_scope", ErrMissingScope},
		{"channel_not_found", ErrChannelNotFound},
		{"not_in_channel", ErrChannelNotFound},
		{"fatal_error", ErrMembersFetch},
	}

	for _, tc := range cases {
		t.Run(tc.apiErr, func(t *testing.T) {
			f := newFakeAPI(t)
			f.channelErr = tc.apiErr

			result := f.fetcher().ListChannelMembers(context.Background(), "C0123ABCD")

			require.False(t, result.OK())
			assert.Equal(t, tc.code, result.ErrorCode)
			assert.NotEmpty(t, result.Detail)
		})
	}
}

func TestNoMembers(t *testing.T) {
	f := newFakeAPI(t)
	f.memberPages = []memberPage{{ids: nil, cursor: ""}}

	result := f.fetcher().ListChannelMembers(context.Background(), "C0123ABCD")

	require.False(t, result.OK())
	assert.Equal(t, ErrNoMembers, result.ErrorCode)
}

func TestProfileLookupFailureIsTolerated(t *testing.T) {
	f := newFakeAPI(t)
	f.memberPages = []memberPage{{ids: []string{"U001", "U002", "U003"}, cursor: ""}}
	f.failUsers["U002"] = true

	result := f.fetcher().ListChannelMembers(context.Background(), "C0123ABCD")

	require.True(t, result.OK())
	assert.Len(t, result.Members, 2)
}

func TestMemberSnapshotFields(t *testing.T) {
	f := newFakeAPI(t)
	f.memberPages = []memberPage{{ids: []string{"U001", "UBOT", "UGONE"}, cursor: ""}}

	human := User{ID: "U001"}
	human.Profile.DisplayName = "Sam"
	human.Profile.Email = "sam@example.com"
	f.users["U001"] = human

	bot := User{ID: "UBOT", IsBot: true, RealName: "Reminder Bot"}
	f.users["UBOT"] = bot

	gone := User{ID: "UGONE", Deleted: true, RealName: "Former Member"}
	f.users["UGONE"] = gone

	result := f.fetcher().ListChannelMembers(context.Background(), "C0123ABCD")
	require.True(t, result.OK())
	require.Len(t, result.Members, 3)

	byID := map[string]Member{}
	for _, m := range result.Members {
		byID[m.ExternalID] = m
	}

	assert.True(t, byID["U001"].IsActive)
	assert.Equal(t, "Sam", byID["U001"].Name)
	assert.Equal(t, "sam@example.com", byID["U001"].Email)
	assert.False(t, byID["UBOT"].IsActive, "bots are never active identities")
	assert.False(t, byID["UGONE"].IsActive, "deleted accounts are never active identities")
}
