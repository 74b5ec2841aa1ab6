// Package notify sends run lifecycle notifications. Slack incoming
// webhooks are the only provider; a notifier built from a nil or
// incomplete config silently does nothing.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackConfig configures the Slack webhook notifier.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Channel    string
	Username   string
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is one formatted message block.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

// Field is a titled key/value pair within an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

const (
	colorGreen  = "#36a64f"
	colorYellow = "#ffc107"
	colorRed    = "#dc3545"

	maxErrorLen   = 500
	maxListedFail = 3
)

// Notifier posts run events to Slack.
type Notifier struct {
	cfg    *SlackConfig
	client *http.Client
}

// New creates a Notifier. A nil config yields a disabled notifier whose
// methods all succeed without doing anything.
func New(cfg *SlackConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsEnabled reports whether notifications will actually be sent.
func (n *Notifier) IsEnabled() bool {
	return n.cfg != nil && n.cfg.Enabled && n.cfg.WebhookURL != ""
}

// SyncStarted announces a new sync run.
func (n *Notifier) SyncStarted(runID, tap, target string, streamCount int) error {
	return n.send(":arrows_counterclockwise:", Attachment{
		Color: colorGreen,
		Title: "Sync Started",
		Fields: []Field{
			{Title: "Run", Value: runID, Short: true},
			{Title: "Tap", Value: tap, Short: true},
			{Title: "Target", Value: target, Short: true},
			{Title: "Streams", Value: fmt.Sprintf("%d", streamCount), Short: true},
		},
	})
}

// SyncCompleted announces a fully successful run.
func (n *Notifier) SyncCompleted(runID string, duration time.Duration, streamCount int, records int64) error {
	return n.send(":white_check_mark:", Attachment{
		Color: colorGreen,
		Title: "Sync Completed",
		Fields: []Field{
			{Title: "Run", Value: runID, Short: true},
			{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
			{Title: "Streams", Value: fmt.Sprintf("%d", streamCount), Short: true},
			{Title: "Records", Value: fmt.Sprintf("%d", records), Short: true},
		},
	})
}

// SyncCompletedWithErrors announces a partial-failure run, listing the
// first few failed streams.
func (n *Notifier) SyncCompletedWithErrors(runID string, duration time.Duration, succeeded, failed int, failedStreams []string) error {
	return n.send(":warning:", Attachment{
		Color: colorYellow,
		Title: "Sync Completed With Errors",
		Fields: []Field{
			{Title: "Run", Value: runID, Short: true},
			{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
			{Title: "Succeeded", Value: fmt.Sprintf("%d", succeeded), Short: true},
			{Title: "Failed", Value: fmt.Sprintf("%d", failed), Short: true},
			{Title: "Failed Streams", Value: failureSummary(failedStreams), Short: false},
		},
	})
}

// SyncFailed announces a run that aborted before completing.
func (n *Notifier) SyncFailed(runID string, err error, duration time.Duration) error {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen] + "..."
	}
	return n.send(":x:", Attachment{
		Color: colorRed,
		Title: "Sync Failed",
		Fields: []Field{
			{Title: "Run", Value: runID, Short: true},
			{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
			{Title: "Error", Value: msg, Short: false},
		},
	})
}

// StreamSyncFailed announces a single stream failure mid-run.
func (n *Notifier) StreamSyncFailed(runID, stream string, err error) error {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen] + "..."
	}
	return n.send(":x:", Attachment{
		Color: colorRed,
		Title: "Stream Sync Failed",
		Fields: []Field{
			{Title: "Run", Value: runID, Short: true},
			{Title: "Stream", Value: stream, Short: true},
			{Title: "Error", Value: msg, Short: false},
		},
	})
}

func failureSummary(streams []string) string {
	if len(streams) <= maxListedFail {
		return "Failed streams: " + strings.Join(streams, ", ")
	}
	return fmt.Sprintf("Failed streams: %s... and %d more",
		strings.Join(streams[:maxListedFail], ", "), len(streams)-maxListedFail)
}

func (n *Notifier) send(icon string, attachment Attachment) error {
	if !n.IsEnabled() {
		return nil
	}
	attachment.Footer = "tapsync"
	attachment.Ts = time.Now().Unix()

	payload := SlackMessage{
		Channel:     n.cfg.Channel,
		Username:    n.cfg.Username,
		IconEmoji:   icon,
		Attachments: []Attachment{attachment},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	resp, err := n.client.Post(n.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
