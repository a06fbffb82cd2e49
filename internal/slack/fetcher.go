package slack

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"teamsync/internal/logger"
)

// ErrorCode classifies a fetch failure. The set is closed; Detail on
// the result carries the free-form diagnostic.
type ErrorCode string

const (
	ErrMissingToken    ErrorCode = "missing_token"
	ErrInvalidAuth     ErrorCode = "invalid_auth"
	ErrMissingScope    ErrorCode = "missing_scope"
	ErrChannelNotFound ErrorCode = "channel_not_found"
	ErrNoMembers       ErrorCode = "no_members"
	ErrMembersFetch    ErrorCode = "members_fetch_error"
)

// Member is a point-in-time snapshot of one channel member. It is not
// persisted; every sync rebuilds the list.
type Member struct {
	ExternalID string
	Name       string
	Email      string
	IsActive   bool // false for deleted accounts and bots
}

// FetchResult is the only thing the fetcher returns: either a member
// list or a coded failure with remediation detail. Errors never cross
// this boundary as Go errors.
type FetchResult struct {
	Members   []Member
	ErrorCode ErrorCode
	Detail    string
}

func (r FetchResult) OK() bool {
	return r.ErrorCode == ""
}

func failure(code ErrorCode, detail string) FetchResult {
	return FetchResult{ErrorCode: code, Detail: detail}
}

const (
	pageLimit = 1000

	// maxPages bounds pagination so a misbehaving API that keeps
	// returning cursors cannot loop us forever.
	maxPages = 50
)

// Opaque channel ids look like C0123ABCD / G0123ABCD.
var channelIDPattern = regexp.MustCompile(`^[CGD][A-Z0-9]{7,}$`)

// Fetcher enumerates external channel membership.
type Fetcher struct {
	client *Client
}

func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// ListChannelMembers resolves a channel by opaque id or by name and
// returns a profile snapshot for every member. A single profile-lookup
// failure drops that member only; the batch continues.
func (f *Fetcher) ListChannelMembers(ctx context.Context, nameOrID string) FetchResult {
	if !f.client.HasToken() {
		return failure(ErrMissingToken,
			"no bot token configured; set SLACK_BOT_TOKEN or a per-organization SLACK_BOT_TOKEN_<ORG>")
	}

	channelID, fail := f.resolveChannel(ctx, nameOrID)
	if fail != nil {
		return *fail
	}

	ids, fail := f.memberIDs(ctx, channelID)
	if fail != nil {
		return *fail
	}

	if len(ids) == 0 {
		return failure(ErrNoMembers,
			fmt.Sprintf("channel %s has no members; check that SLACK_CHANNEL_ID points at the team channel", channelID))
	}

	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		user, err := f.client.UserInfo(ctx, id)
		if err != nil {
			logger.Warn("profile lookup failed, dropping member", map[string]any{
				"user_id": id,
				"error":   err.Error(),
			})
			continue
		}

		members = append(members, Member{
			ExternalID: user.ID,
			Name:       user.DisplayName(),
			Email:      user.Profile.Email,
			IsActive:   !user.Deleted && !user.IsBot,
		})
	}

	if len(members) == 0 {
		return failure(ErrMembersFetch,
			fmt.Sprintf("all %d profile lookups for channel %s failed; check users:read scope and API status", len(ids), channelID))
	}

	return FetchResult{Members: members}
}

// resolveChannel turns a channel name or opaque id into a verified
// channel id.
func (f *Fetcher) resolveChannel(ctx context.Context, nameOrID string) (string, *FetchResult) {
	if channelIDPattern.MatchString(nameOrID) {
		if _, err := f.client.ChannelInfo(ctx, nameOrID); err != nil {
			fail := mapAPIError(err, "verifying channel "+nameOrID)
			return "", &fail
		}
		return nameOrID, nil
	}

	cursor := ""
	for page := 0; page < maxPages; page++ {
		channels, next, err := f.client.ListChannels(ctx, cursor, pageLimit)
		if err != nil {
			fail := mapAPIError(err, "listing channel catalog")
			return "", &fail
		}

		for _, ch := range channels {
			if strings.EqualFold(ch.Name, nameOrID) {
				return ch.ID, nil
			}
		}

		if next == "" {
			fail := failure(ErrChannelNotFound,
				fmt.Sprintf("no channel named %q in the catalog; check SLACK_CHANNEL_ID and invite the bot to the channel", nameOrID))
			return "", &fail
		}
		if next == cursor {
			fail := failure(ErrMembersFetch,
				fmt.Sprintf("channel catalog pagination stalled on cursor %q", cursor))
			return "", &fail
		}
		cursor = next
	}

	fail := failure(ErrMembersFetch,
		fmt.Sprintf("channel catalog pagination did not terminate within %d pages", maxPages))
	return "", &fail
}

func (f *Fetcher) memberIDs(ctx context.Context, channelID string) ([]string, *FetchResult) {
	var ids []string

	cursor := ""
	for page := 0; page < maxPages; page++ {
		pageIDs, next, err := f.client.ChannelMemberIDs(ctx, channelID, cursor, pageLimit)
		if err != nil {
			fail := mapAPIError(err, "listing members of channel "+channelID)
			return nil, &fail
		}

		ids = append(ids, pageIDs...)

		if next == "" {
			return ids, nil
		}
		if next == cursor {
			fail := failure(ErrMembersFetch,
				fmt.Sprintf("member pagination for channel %s stalled on cursor %q", channelID, cursor))
			return nil, &fail
		}
		cursor = next
	}

	fail := failure(ErrMembersFetch,
		fmt.Sprintf("member pagination for channel %s did not terminate within %d pages", channelID, maxPages))
	return nil, &fail
}

// mapAPIError converts a platform error into the closed code set with a
// remediation hint.
func mapAPIError(err error, attempted string) FetchResult {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "invalid_auth", "not_authed", "account_inactive", "token_revoked":
			return failure(ErrInvalidAuth,
				fmt.Sprintf("%s: platform rejected the bot token (%s); reinstall the app or rotate the token", attempted, apiErr.Code))
		case "missing_scope":
			return failure(ErrMissingScope,
				fmt.Sprintf("%s: bot token lacks a required scope; grant channels:read, groups:read and users:read", attempted))
		case "channel_not_found", "not_in_channel":
			return failure(ErrChannelNotFound,
				fmt.Sprintf("%s: channel is missing or the bot is not a member (%s); invite the bot with /invite", attempted, apiErr.Code))
		}
		return failure(ErrMembersFetch,
			fmt.Sprintf("%s: unexpected platform error %s", attempted, apiErr.Code))
	}

	return failure(ErrMembersFetch,
		fmt.Sprintf("%s: %v", attempted, err))
}
