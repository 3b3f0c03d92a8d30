package server

import (
	"context"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fede-assistant/fede/internal/service"
)

type fakeSource struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (f *fakeSource) Updates(timeout int) tgbotapi.UpdatesChannel { return f.ch }
func (f *fakeSource) Stop()                                      { f.stopped = true }

type recordingHandler struct {
	mu        sync.Mutex
	messages  []*service.Message
	callbacks []*service.Callback
	waited    bool
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg *service.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) HandleCallback(ctx context.Context, cb *service.Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb)
}

func (h *recordingHandler) Wait() { h.waited = true }

func textUpdate(id int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			From:      &tgbotapi.User{ID: 42, FirstName: "Ana"},
			Chat:      &tgbotapi.Chat{ID: 1000},
			Text:      text,
		},
	}
}

func runUpdates(t *testing.T, updates ...tgbotapi.Update) (*recordingHandler, *fakeSource) {
	t.Helper()
	src := &fakeSource{ch: make(chan tgbotapi.Update, len(updates))}
	for _, u := range updates {
		src.ch <- u
	}
	close(src.ch)

	h := &recordingHandler{}
	require.NoError(t, NewTelegramServer(src, h, nil, nil).Run(context.Background()))
	return h, src
}

func TestTelegramServer_DuplicateUpdatesProcessedOnce(t *testing.T) {
	h, _ := runUpdates(t,
		textUpdate(1, "hello"),
		textUpdate(1, "hello"),
		textUpdate(2, "again"),
		textUpdate(1, "hello"),
	)

	require.Len(t, h.messages, 2)
	assert.Equal(t, "hello", h.messages[0].Text)
	assert.Equal(t, "again", h.messages[1].Text)
	assert.True(t, h.waited)
}

func TestTelegramServer_ConvertsCommandsAndPhotos(t *testing.T) {
	cmd := textUpdate(1, "/confirm ab12cd34")
	cmd.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 8}}

	photo := tgbotapi.Update{
		UpdateID: 2,
		Message: &tgbotapi.Message{
			From:    &tgbotapi.User{ID: 42},
			Chat:    &tgbotapi.Chat{ID: 1000},
			Caption: "whatsapp chat",
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: "large", Width: 1280, Height: 960},
				{FileID: "medium", Width: 320, Height: 240},
			},
		},
	}

	h, _ := runUpdates(t, cmd, photo)

	require.Len(t, h.messages, 2)
	assert.Equal(t, "confirm", h.messages[0].Command)
	assert.Equal(t, "ab12cd34", h.messages[0].Args)
	assert.Equal(t, int64(42), h.messages[0].UserID)
	assert.Equal(t, "Ana", h.messages[0].FirstName)

	assert.Equal(t, "large", h.messages[1].PhotoFileID)
	assert.Equal(t, "whatsapp chat", h.messages[1].Caption)
	assert.Empty(t, h.messages[1].Command)
}

func TestTelegramServer_Callbacks(t *testing.T) {
	h, _ := runUpdates(t, tgbotapi.Update{
		UpdateID: 5,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: 42},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1000}},
			Data:    service.CallbackConfirm + "ab12cd34",
		},
	})

	require.Len(t, h.callbacks, 1)
	assert.Equal(t, &service.Callback{ID: "cb-1", ChatID: 1000, UserID: 42, Data: "act:confirm:ab12cd34"}, h.callbacks[0])
	assert.Empty(t, h.messages)
}

func TestTelegramServer_StopsOnCancel(t *testing.T) {
	src := &fakeSource{ch: make(chan tgbotapi.Update)}
	h := &recordingHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, NewTelegramServer(src, h, nil, nil).Run(ctx))
	assert.True(t, src.stopped)
	assert.True(t, h.waited)
}
