package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the platform's Web API root.
const DefaultBaseURL = "https://slack.com/api"

// APIError is a platform-level failure, i.e. an HTTP 200 whose envelope
// carries ok=false and an error code.
type APIError struct {
	Code string // e.g. "invalid_auth", "channel_not_found"
}

func (e *APIError) Error() string {
	return "slack api error: " + e.Code
}

// Client provides access to the chat platform's Web API. It is bound to
// a single bot token; callers needing per-organization credentials
// construct one client per organization.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a different API root (tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether the client was given a bot token.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// envelope is the common wrapper on every API response.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type responseMetadata struct {
	NextCursor string `json:"next_cursor"`
}

// apiResult lets typed responses expose the shared envelope.
type apiResult interface {
	ok() bool
	errCode() string
}

func (e *envelope) ok() bool        { return e.OK }
func (e *envelope) errCode() string { return e.Error }

func (c *Client) get(ctx context.Context, method string, params url.Values, out apiResult) error {
	u := c.baseURL + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, method, out)
}

func (c *Client) post(ctx context.Context, method string, body any, out apiResult) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out apiResult) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing %s response: %w", method, err)
	}

	if !out.ok() {
		return &APIError{Code: out.errCode()}
	}

	return nil
}

// Channel is an entry from the channel catalog.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type channelListResponse struct {
	envelope
	Channels         []Channel        `json:"channels"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

// ListChannels returns one page of the channel catalog and the cursor
// for the next page ("" on the final page).
func (c *Client) ListChannels(ctx context.Context, cursor string, limit int) ([]Channel, string, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(limit))
	params.Set("types", "public_channel,private_channel")
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var result channelListResponse
	if err := c.get(ctx, "conversations.list", params, &result); err != nil {
		return nil, "", err
	}

	return result.Channels, result.ResponseMetadata.NextCursor, nil
}

type channelInfoResponse struct {
	envelope
	Channel Channel `json:"channel"`
}

// ChannelInfo verifies a channel id is accessible and returns it.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (*Channel, error) {
	params := url.Values{}
	params.Set("channel", channelID)

	var result channelInfoResponse
	if err := c.get(ctx, "conversations.info", params, &result); err != nil {
		return nil, err
	}

	return &result.Channel, nil
}

type memberIDsResponse struct {
	envelope
	Members          []string         `json:"members"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

// ChannelMemberIDs returns one page of member ids for a channel.
func (c *Client) ChannelMemberIDs(ctx context.Context, channelID, cursor string, limit int) ([]string, string, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("limit", fmt.Sprint(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var result memberIDsResponse
	if err := c.get(ctx, "conversations.members", params, &result); err != nil {
		return nil, "", err
	}

	return result.Members, result.ResponseMetadata.NextCursor, nil
}

// User is a profile from users.info.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	IsBot    bool   `json:"is_bot"`
	Profile  struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
		Email       string `json:"email"`
	} `json:"profile"`
}

// DisplayName prefers the profile display name, then real name, then
// the username.
func (u *User) DisplayName() string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	if u.Profile.RealName != "" {
		return u.Profile.RealName
	}
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

type userInfoResponse struct {
	envelope
	User User `json:"user"`
}

// UserInfo resolves a single user id to a profile.
func (c *Client) UserInfo(ctx context.Context, userID string) (*User, error) {
	params := url.Values{}
	params.Set("user", userID)

	var result userInfoResponse
	if err := c.get(ctx, "users.info", params, &result); err != nil {
		return nil, err
	}

	return &result.User, nil
}

type openDMResponse struct {
	envelope
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// OpenDM opens (or reuses) a direct-message conversation with a user
// and returns its channel id.
func (c *Client) OpenDM(ctx context.Context, userID string) (string, error) {
	var result openDMResponse
	err := c.post(ctx, "conversations.open", map[string]string{"users": userID}, &result)
	if err != nil {
		return "", err
	}
	return result.Channel.ID, nil
}

type postMessageResponse struct {
	envelope
}

// PostMessage posts a message with plain text and optional rich blocks.
func (c *Client) PostMessage(ctx context.Context, channelID, text string, blocks []Block) error {
	payload := map[string]any{
		"channel": channelID,
		"text":    text,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}

	var result postMessageResponse
	return c.post(ctx, "chat.postMessage", payload, &result)
}
