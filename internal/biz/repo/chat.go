package repo

import "context"

// Button is an inline keyboard button
type Button struct {
	Text string
	Data string
}

// ChatRepo is the outgoing chat interface (Telegram)
type ChatRepo interface {
	// SendText sends a text message, splitting it when too long
	SendText(ctx context.Context, chatID int64, text string) error

	// SendWithButtons sends a text message with an inline keyboard
	SendWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error

	// SendTyping shows the typing indicator
	SendTyping(ctx context.Context, chatID int64) error

	// AnswerCallback acknowledges an inline button press
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// DownloadFile downloads a file and returns its bytes and media type
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}
