// Package notify announces the finished card to a Telegram chat.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

// Notifier sends messages to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyCard announces a finalized card review.
func (n *Notifier) NotifyCard(ctx context.Context, review domain.CardReview) error {
	return n.Send(ctx, FormatCard(review))
}

// FormatCard renders a review as the Telegram HTML message body.
func FormatCard(review domain.CardReview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Card %s</b>\n", review.Date.Format("2006-01-02"))
	if review.Err != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", review.Err)
	}
	if len(review.Approved) == 0 {
		b.WriteString("No approved picks today.\n")
	}
	for _, p := range review.Approved {
		marker := ""
		if p.BestBet {
			marker = " ⭐"
		}
		fmt.Fprintf(&b, "%s %+d (%.1fu)%s\n", p.Selection, p.Odds, p.Units, marker)
	}
	if len(review.Rejected) > 0 {
		fmt.Fprintf(&b, "\nRejected: %d\n", len(review.Rejected))
	}
	if review.Notes != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>\n", review.Notes)
	}
	fmt.Fprintf(&b, "\nIterations: %d", review.Iterations)
	return b.String()
}
