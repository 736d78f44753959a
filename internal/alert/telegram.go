package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// TelegramError is a sendMessage call the Bot API refused. RetryAfter is set
// when the bot itself is being rate limited.
type TelegramError struct {
	Status      int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *TelegramError) Error() string {
	msg := fmt.Sprintf("telegram status=%d code=%d: %s", e.Status, e.Code, e.Description)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// RetryAfter reports how long the Bot API asked the caller to back off.
func RetryAfter(err error) (time.Duration, bool) {
	var tg *TelegramError
	if errors.As(err, &tg) && tg.RetryAfter > 0 {
		return tg.RetryAfter, true
	}
	return 0, false
}

// TelegramNotifier delivers alerts as preformatted messages so adapter ids,
// masked keys and raw exchange feedback keep their exact spelling.
type TelegramNotifier struct {
	enabled  bool
	endpoint string
	chatID   string
	client   *http.Client
}

func NewTelegramNotifier(enabled bool, botToken, chatID, baseURL string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		enabled:  enabled,
		endpoint: strings.TrimRight(baseURL, "/") + "/bot" + botToken + "/sendMessage",
		chatID:   chatID,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg string) error {
	if t == nil || !t.enabled {
		return nil
	}
	body, err := json.Marshal(sendMessage{
		ChatID:                t.chatID,
		Text:                  "<pre>" + html.EscapeString(msg) + "</pre>",
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed sendMessageResult
	decodeErr := json.Unmarshal(raw, &parsed)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && (len(raw) == 0 || decodeErr != nil || parsed.OK) {
		return nil
	}
	tgErr := &TelegramError{
		Status:      resp.StatusCode,
		Code:        parsed.ErrorCode,
		Description: strings.TrimSpace(parsed.Description),
		RetryAfter:  time.Duration(parsed.Parameters.RetryAfter) * time.Second,
	}
	if tgErr.Description == "" {
		tgErr.Description = strings.TrimSpace(string(raw))
	}
	return tgErr
}

type sendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResult struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}
