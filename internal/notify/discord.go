package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// discordMaxDescription is the embed description limit.
const discordMaxDescription = 4096

type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// DiscordNotifier posts messages to a Discord webhook as an embed.
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

// NewDiscordNotifier creates the notifier.
func NewDiscordNotifier(webhookURL string, httpClient *http.Client) (*DiscordNotifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("%w: discord webhook url is required", ErrNotConfigured)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordNotifier{webhookURL: webhookURL, httpClient: httpClient, now: time.Now}, nil
}

// Send posts one embed; the body is wrapped in a code block to keep the layout.
func (d *DiscordNotifier) Send(ctx context.Context, subject, body string) error {
	desc := "```\n" + body + "\n```"
	if r := []rune(desc); len(r) > discordMaxDescription {
		desc = string(r[:discordMaxDescription-4]) + "\n```"
	}

	payload, err := json.Marshal(discordMessage{
		Embeds: []discordEmbed{{
			Title:       subject,
			Description: desc,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
			Color:       3447003,
		}},
	})
	if err != nil {
		return fmt.Errorf("discord marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("discord API error: %s, response: %s", resp.Status, string(respBody))
}

var _ Notifier = (*DiscordNotifier)(nil)
