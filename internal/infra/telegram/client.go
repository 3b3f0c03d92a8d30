package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// MaxMessageLength is Telegram's limit for one text message
const MaxMessageLength = 4096

// Button is one inline keyboard button
type Button struct {
	Text string
	Data string
}

// Options configure the client
type Options struct {
	// APIEndpoint overrides tgbotapi.APIEndpoint, mainly for tests
	APIEndpoint string
	// SendRate is the sustained number of outgoing requests per second
	SendRate float64
	SendBurst int
	HTTPClient *http.Client
}

// Client wraps the Bot API
type Client struct {
	bot     *tgbotapi.BotAPI
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient connects to the Bot API and verifies the token
func NewClient(token string, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.SendRate <= 0 {
		opts.SendRate = 20
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 5
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, opts.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}
	if err := tgbotapi.SetLogger(&botLogger{logger: logger}); err != nil {
		logger.Warn("set telegram logger failed", "error", err)
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Client{
		bot:     bot,
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.SendRate), opts.SendBurst),
		logger:  logger,
	}, nil
}

// botLogger sends the library's own log lines to slog
type botLogger struct {
	logger *slog.Logger
}

func (l *botLogger) Println(v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprint(v...)), "source", "telegram_api")
}

func (l *botLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "telegram_api")
}

// Username returns the bot's username without '@'
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// Updates starts long polling. The channel closes after Stop.
func (c *Client) Updates(timeout int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return c.bot.GetUpdatesChan(u)
}

// Stop ends long polling
func (c *Client) Stop() {
	c.bot.StopReceivingUpdates()
}

// SendText sends text, split into as many messages as needed. Markdown is
// tried first and dropped if Telegram rejects the entities.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, MaxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, part)
		if err := c.sendMarkdown(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// SendWithButtons sends a single message with an inline keyboard
func (c *Client) SendWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	parts := SplitMessage(text, MaxMessageLength)
	for _, part := range parts[:len(parts)-1] {
		if err := c.sendMarkdown(ctx, tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}

	msg := tgbotapi.NewMessage(chatID, parts[len(parts)-1])
	if len(rows) > 0 {
		msg.ReplyMarkup = keyboard(rows)
	}
	return c.sendMarkdown(ctx, msg)
}

func keyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func (c *Client) sendMarkdown(ctx context.Context, msg tgbotapi.MessageConfig) error {
	msg.ParseMode = tgbotapi.ModeMarkdown
	err := c.send(ctx, msg)
	if err == nil || !isParseError(err) {
		return err
	}

	c.logger.Debug("markdown rejected, resending as plain text", "chat_id", msg.ChatID, "error", err)
	msg.ParseMode = ""
	return c.send(ctx, msg)
}

func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func isParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "parse")
	}
	return false
}

// SendTyping shows the typing indicator
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("send typing: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges an inline button press
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// DownloadFile fetches a file by id and returns its bytes and media type
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return data, mediaType(url, data), nil
}

func mediaType(url string, data []byte) string {
	if ext := path.Ext(url); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}

// LargestPhoto picks the highest resolution size of a photo
func LargestPhoto(sizes []tgbotapi.PhotoSize) (tgbotapi.PhotoSize, bool) {
	if len(sizes) == 0 {
		return tgbotapi.PhotoSize{}, false
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best, true
}
