package data

import (
	"context"

	"github.com/fede-assistant/fede/internal/biz/repo"
	"github.com/fede-assistant/fede/internal/infra/telegram"
)

// telegramRepo implements repo.ChatRepo
type telegramRepo struct {
	client *telegram.Client
}

// NewTelegramRepo creates the chat repository
func NewTelegramRepo(client *telegram.Client) repo.ChatRepo {
	return &telegramRepo{client: client}
}

func (r *telegramRepo) SendText(ctx context.Context, chatID int64, text string) error {
	return r.client.SendText(ctx, chatID, text)
}

func (r *telegramRepo) SendWithButtons(ctx context.Context, chatID int64, text string, rows [][]repo.Button) error {
	converted := make([][]telegram.Button, 0, len(rows))
	for _, row := range rows {
		buttons := make([]telegram.Button, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.Button{Text: b.Text, Data: b.Data})
		}
		converted = append(converted, buttons)
	}
	return r.client.SendWithButtons(ctx, chatID, text, converted)
}

func (r *telegramRepo) SendTyping(ctx context.Context, chatID int64) error {
	return r.client.SendTyping(ctx, chatID)
}

func (r *telegramRepo) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return r.client.AnswerCallback(ctx, callbackID, text)
}

func (r *telegramRepo) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	return r.client.DownloadFile(ctx, fileID)
}
