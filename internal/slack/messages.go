package slack

import (
	"context"
	"fmt"
)

// TextObject is a Block Kit text element.
type TextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

// Block is a minimal Block Kit layout block.
type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

func mrkdwnSection(text string) Block {
	return Block{
		Type: "section",
		Text: &TextObject{Type: "mrkdwn", Text: text},
	}
}

// SetupMessenger delivers account-setup direct messages. Message
// content lives here, away from reconciliation: delivery failures
// never affect sync correctness.
type SetupMessenger struct {
	client  *Client
	baseURL string // app base URL embedded in the setup link
}

func NewSetupMessenger(client *Client, baseURL string) *SetupMessenger {
	return &SetupMessenger{client: client, baseURL: baseURL}
}

// SendSetup opens a DM with the user and posts their setup message.
func (m *SetupMessenger) SendSetup(ctx context.Context, externalID, name, setupToken string) error {
	dmChannel, err := m.client.OpenDM(ctx, externalID)
	if err != nil {
		return fmt.Errorf("opening dm with %s: %w", externalID, err)
	}

	setupLink := fmt.Sprintf("%s/setup?token=%s", m.baseURL, setupToken)
	text := fmt.Sprintf("Welcome aboard, %s! Finish setting up your account: %s", name, setupLink)

	blocks := []Block{
		mrkdwnSection(fmt.Sprintf("*Welcome aboard, %s!* :wave:", name)),
		mrkdwnSection(fmt.Sprintf("Your team added you to its check-in space. <%s|Finish setting up your account> to start posting updates.", setupLink)),
	}

	if err := m.client.PostMessage(ctx, dmChannel, text, blocks); err != nil {
		return fmt.Errorf("posting setup message to %s: %w", externalID, err)
	}

	return nil
}

// ChannelNotifier posts billing and sync notifications to a private
// admin channel. It uses the workspace-wide token, not per-organization
// ones.
type ChannelNotifier struct {
	client    *Client
	channelID string
}

func NewChannelNotifier(client *Client, channelID string) *ChannelNotifier {
	return &ChannelNotifier{client: client, channelID: channelID}
}

// SeatsAdded reports one aggregated billing addition for a run.
func (n *ChannelNotifier) SeatsAdded(ctx context.Context, orgSlug string, count int) error {
	text := fmt.Sprintf(":moneybag: %s: %d seat(s) added this sync, billing adjustment needed", orgSlug, count)
	return n.client.PostMessage(ctx, n.channelID, text, nil)
}

// SeatsRemoved reports one aggregated billing removal for a run.
func (n *ChannelNotifier) SeatsRemoved(ctx context.Context, orgSlug string, count int) error {
	text := fmt.Sprintf(":moneybag: %s: %d seat(s) removed this sync, billing adjustment needed", orgSlug, count)
	return n.client.PostMessage(ctx, n.channelID, text, nil)
}

// PostSummary posts a free-form sync summary line.
func (n *ChannelNotifier) PostSummary(ctx context.Context, text string) error {
	return n.client.PostMessage(ctx, n.channelID, text, nil)
}
