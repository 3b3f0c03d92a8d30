package server

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fede-assistant/fede/internal/infra/telegram"
	"github.com/fede-assistant/fede/internal/logutil"
	"github.com/fede-assistant/fede/internal/metrics"
	"github.com/fede-assistant/fede/internal/service"
)

const (
	defaultPollTimeout = 30
	seenUpdatesSize    = 1024
)

// UpdateSource delivers Telegram updates
type UpdateSource interface {
	Updates(timeout int) tgbotapi.UpdatesChannel
	Stop()
}

// Handler processes converted updates
type Handler interface {
	HandleMessage(ctx context.Context, msg *service.Message)
	HandleCallback(ctx context.Context, cb *service.Callback)
	Wait()
}

// TelegramServer consumes the update stream and hands it to the bot service
type TelegramServer struct {
	source  UpdateSource
	handler Handler
	metrics *metrics.Observer
	logger  *slog.Logger

	pollTimeout int
	seen        *lru.Cache[int, struct{}]
}

// NewTelegramServer creates a new Telegram server
func NewTelegramServer(source UpdateSource, handler Handler, observer *metrics.Observer, logger *slog.Logger) *TelegramServer {
	if logger == nil {
		logger = slog.Default()
	}
	seen, _ := lru.New[int, struct{}](seenUpdatesSize)
	return &TelegramServer{
		source:      source,
		handler:     handler,
		metrics:     observer,
		logger:      logger,
		pollTimeout: defaultPollTimeout,
		seen:        seen,
	}
}

// Run polls updates until ctx is cancelled or the stream closes,
// then waits for in-flight turns.
func (s *TelegramServer) Run(ctx context.Context) error {
	updates := s.source.Updates(s.pollTimeout)
	s.logger.Info("polling for updates")

	defer s.handler.Wait()
	for {
		select {
		case <-ctx.Done():
			s.source.Stop()
			s.logger.Info("update loop stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				s.logger.Info("update stream closed")
				return nil
			}
			s.dispatch(ctx, update)
		}
	}
}

func (s *TelegramServer) dispatch(ctx context.Context, update tgbotapi.Update) {
	// Update ids are redelivered after a restart or a failed offset ack
	if _, dup := s.seen.Get(update.UpdateID); dup {
		s.logger.Debug("duplicate update ignored", "update_id", update.UpdateID)
		s.metrics.RecordUpdate("update", "duplicate")
		return
	}
	s.seen.Add(update.UpdateID, struct{}{})

	switch {
	case update.CallbackQuery != nil:
		cb := convertCallback(update.CallbackQuery)
		s.logger.Debug("callback received", "update_id", update.UpdateID, "data", cb.Data)
		s.handler.HandleCallback(ctx, cb)
	case update.Message != nil:
		msg := convertMessage(update.Message)
		s.logger.Debug("message received",
			"update_id", update.UpdateID,
			"chat_id", msg.ChatID,
			"command", msg.Command,
			"photo", msg.PhotoFileID != "",
			"text", logutil.Truncate(msg.Text, 50))
		s.handler.HandleMessage(ctx, msg)
	default:
		s.metrics.RecordUpdate("other", "ignored")
	}
}

func convertMessage(m *tgbotapi.Message) *service.Message {
	msg := &service.Message{Text: m.Text, Caption: m.Caption}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.From != nil {
		msg.UserID = m.From.ID
		msg.FirstName = m.From.FirstName
	}
	if m.IsCommand() {
		msg.Command = m.Command()
		msg.Args = m.CommandArguments()
	}
	if photo, ok := telegram.LargestPhoto(m.Photo); ok {
		msg.PhotoFileID = photo.FileID
	}
	return msg
}

func convertCallback(q *tgbotapi.CallbackQuery) *service.Callback {
	cb := &service.Callback{ID: q.ID, Data: q.Data}
	if q.From != nil {
		cb.UserID = q.From.ID
	}
	if q.Message != nil && q.Message.Chat != nil {
		cb.ChatID = q.Message.Chat.ID
	}
	return cb
}
