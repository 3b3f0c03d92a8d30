package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fede-assistant/fede/internal/biz"
	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
	"github.com/fede-assistant/fede/internal/biz/usecase"
	"github.com/fede-assistant/fede/internal/metrics"
)

// User-facing replies
const (
	ReplyUnauthorized  = "Sorry, you are not authorized to use this bot."
	ReplyBusy          = "Still processing your previous message. Please wait."
	ReplyTextError     = "Sorry, I encountered an error processing your message. Please try again."
	ReplyPhotoError    = "Sorry, I couldn't process the image. Please try again."
	ReplyCalendarError = "Sorry, I couldn't fetch your calendar events. Please make sure the Google Calendar integration is properly configured."
	ReplyActionError   = "Sorry, I couldn't carry out that action. Please try again."
	ReplyActionRetry   = "Sorry, I couldn't carry out that action. It is still pending: /confirm %s to try again or /reject %s to drop it."
	ReplyNewSession    = "Started a new conversation. How can I help you today?"
	ReplyEnded         = "Conversation ended. Send a message to start a new one."
	ReplyNothingToEnd  = "No active conversation to end."
	ReplyNoSession     = "No active session. Send a message to start."
	ReplyNoPending     = "No pending actions."
	ReplyUnknown       = "Unknown command. Use /help to see available commands."
	ReplyImageActions  = "🔍 *I detected potential actions in this image:*"
)

// Callback data prefixes
const (
	CallbackConfirm    = "act:confirm:"
	CallbackReject     = "act:reject:"
	CallbackPatternYes = "pat:yes:"
	CallbackPatternNo  = "pat:no:"
)

const statusMessageCap = 100

// Message is an inbound chat message
type Message struct {
	ChatID    int64
	UserID    int64
	FirstName string

	Text    string
	Command string // Without the leading '/', empty for plain text
	Args    string

	PhotoFileID string
	Caption     string
}

// Callback is an inline button press
type Callback struct {
	ID     string
	ChatID int64
	UserID int64
	Data   string
}

// BotService handles the authorized user's messages
type BotService struct {
	uc      *biz.Usecases
	llm     repo.LLMRepo
	chat    repo.ChatRepo
	metrics *metrics.Observer
	userID  int64
	logger  *slog.Logger

	busyMu sync.Mutex
	busy   map[int64]bool
	wg     sync.WaitGroup
}

// NewBotService creates the bot service for the single authorized user
func NewBotService(uc *biz.Usecases, llm repo.LLMRepo, chat repo.ChatRepo, observer *metrics.Observer, userID int64, logger *slog.Logger) *BotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotService{
		uc:      uc,
		llm:     llm,
		chat:    chat,
		metrics: observer,
		userID:  userID,
		logger:  logger,
		busy:    make(map[int64]bool),
	}
}

// Authorized reports whether a user id may use the bot
func (s *BotService) Authorized(userID int64) bool {
	return userID != 0 && userID == s.userID
}

// Wait blocks until every in-flight turn has finished
func (s *BotService) Wait() {
	s.wg.Wait()
}

// HandleMessage dispatches a message. Model turns run in the background.
func (s *BotService) HandleMessage(ctx context.Context, msg *Message) {
	if !s.Authorized(msg.UserID) {
		s.logger.Warn("unauthorized message", "user_id", msg.UserID, "chat_id", msg.ChatID)
		s.metrics.RecordUpdate("message", "unauthorized")
		s.send(ctx, msg.ChatID, ReplyUnauthorized)
		return
	}

	switch {
	case msg.Command != "":
		s.metrics.RecordUpdate("command", "ok")
		s.handleCommand(ctx, msg)
	case msg.PhotoFileID != "":
		s.metrics.RecordUpdate("photo", "ok")
		s.runExclusive(ctx, msg.ChatID, func(ctx context.Context) { s.handlePhoto(ctx, msg) })
	case strings.TrimSpace(msg.Text) != "":
		s.metrics.RecordUpdate("text", "ok")
		s.runExclusive(ctx, msg.ChatID, func(ctx context.Context) { s.handleText(ctx, msg) })
	default:
		s.metrics.RecordUpdate("other", "ignored")
	}
}

// runExclusive starts fn in the background unless the chat already has a turn in flight
func (s *BotService) runExclusive(ctx context.Context, chatID int64, fn func(ctx context.Context)) {
	s.busyMu.Lock()
	if s.busy[chatID] {
		s.busyMu.Unlock()
		s.send(ctx, chatID, ReplyBusy)
		return
	}
	s.busy[chatID] = true
	s.busyMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.busyMu.Lock()
			delete(s.busy, chatID)
			s.busyMu.Unlock()
		}()
		if err := s.chat.SendTyping(ctx, chatID); err != nil {
			s.logger.Debug("typing indicator failed", "error", err)
		}
		fn(ctx)
	}()
}

func (s *BotService) handleCommand(ctx context.Context, msg *Message) {
	switch msg.Command {
	case "start":
		s.send(ctx, msg.ChatID, startText(msg.FirstName))
	case "help":
		s.send(ctx, msg.ChatID, helpText(s.llm.Integrations()))
	case "new":
		s.handleNew(ctx, msg)
	case "end":
		s.handleEnd(ctx, msg)
	case "status":
		s.handleStatus(ctx, msg)
	case "calendar":
		s.runExclusive(ctx, msg.ChatID, func(ctx context.Context) { s.handleCalendar(ctx, msg) })
	case "pending":
		s.handlePending(ctx, msg)
	case "confirm":
		id := strings.TrimSpace(msg.Args)
		if id == "" {
			s.send(ctx, msg.ChatID, "Usage: /confirm <action id>")
			return
		}
		s.runExclusive(ctx, msg.ChatID, func(ctx context.Context) {
			s.confirmAction(ctx, msg.ChatID, msg.UserID, id, "command")
		})
	case "reject":
		id := strings.TrimSpace(msg.Args)
		if id == "" {
			s.send(ctx, msg.ChatID, "Usage: /reject <action id>")
			return
		}
		s.runExclusive(ctx, msg.ChatID, func(ctx context.Context) {
			s.rejectAction(ctx, msg.ChatID, msg.UserID, id, "command")
		})
	default:
		s.send(ctx, msg.ChatID, ReplyUnknown)
	}
}

func startText(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello %s! I'm Fede, your personal AI assistant.\n\n"+
		"I can help you manage your digital life. Send me a message to get started!\n\n"+
		"Commands:\n"+
		"/help - Show available commands\n"+
		"/new - Start a new conversation\n"+
		"/end - End current conversation\n"+
		"/status - Show session status\n"+
		"/calendar - Show upcoming calendar events\n"+
		"/pending - List actions waiting for confirmation", name)
}

var integrationLabels = map[string]string{
	"calendar": "Google Calendar - List and manage events",
	"gmail":    "Gmail - Read and manage emails",
	"whatsapp": "WhatsApp - Read and send messages",
}

func helpText(integrations []string) string {
	var sb strings.Builder
	sb.WriteString("*Fede - Personal AI Assistant*\n\n")
	sb.WriteString("*Commands:*\n")
	sb.WriteString("• /start - Start the bot\n")
	sb.WriteString("• /help - Show this help message\n")
	sb.WriteString("• /new - Start a fresh conversation\n")
	sb.WriteString("• /end - End and save current conversation\n")
	sb.WriteString("• /status - Show current session info\n")
	sb.WriteString("• /calendar - Show upcoming calendar events\n")
	sb.WriteString("• /pending - List actions waiting for confirmation\n")
	sb.WriteString("• /confirm <id> - Confirm a proposed action\n")
	sb.WriteString("• /reject <id> - Reject a proposed action\n\n")
	sb.WriteString("*Features:*\n")
	sb.WriteString("• Send text messages for assistance\n")
	sb.WriteString("• Send screenshots for analysis\n")
	sb.WriteString("• Persistent conversation memory\n")
	sb.WriteString("• Pattern learning (with your permission)\n\n")
	sb.WriteString("*Available Integrations:*\n")
	if len(integrations) == 0 {
		sb.WriteString("• None connected\n")
	}
	for _, name := range integrations {
		label, ok := integrationLabels[name]
		if !ok {
			label = name
		}
		sb.WriteString("• ✅ " + label + "\n")
	}
	sb.WriteString("\nJust send me a message to start chatting!")
	return sb.String()
}

func (s *BotService) handleNew(ctx context.Context, msg *Message) {
	session, err := s.uc.Session.NewSession(ctx, msg.UserID)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		s.send(ctx, msg.ChatID, ReplyTextError)
		return
	}
	s.logger.Info("session started", "session_id", session.ID)
	s.send(ctx, msg.ChatID, ReplyNewSession)
}

func (s *BotService) handleEnd(ctx context.Context, msg *Message) {
	ended, err := s.uc.Session.EndSession(ctx, msg.UserID)
	if err != nil {
		s.logger.Error("failed to end session", "error", err)
		s.send(ctx, msg.ChatID, ReplyTextError)
		return
	}
	if ended == nil {
		s.send(ctx, msg.ChatID, ReplyNothingToEnd)
		return
	}
	s.logger.Info("session ended", "session_id", ended.ID)
	s.send(ctx, msg.ChatID, ReplyEnded)
}

func (s *BotService) handleStatus(ctx context.Context, msg *Message) {
	session, err := s.uc.Session.Current(ctx, msg.UserID)
	if err != nil {
		s.logger.Error("failed to load session", "error", err)
		s.send(ctx, msg.ChatID, ReplyTextError)
		return
	}
	if session == nil {
		s.send(ctx, msg.ChatID, ReplyNoSession)
		return
	}

	count, err := s.uc.Session.MessageCount(ctx, session.ID)
	if err != nil {
		s.logger.Warn("failed to count messages", "session_id", session.ID, "error", err)
	}
	if count > statusMessageCap {
		count = statusMessageCap
	}
	pending, err := s.uc.Action.Pending(ctx, session.ID)
	if err != nil {
		s.logger.Warn("failed to list pending actions", "session_id", session.ID, "error", err)
	}

	s.send(ctx, msg.ChatID, fmt.Sprintf("*Session Status*\n• Session ID: %d\n• Messages: %d\n• Model: %s\n• Pending actions: %d",
		session.ID, count, s.llm.Model(), len(pending)))
}

func (s *BotService) handlePending(ctx context.Context, msg *Message) {
	session, err := s.uc.Session.Current(ctx, msg.UserID)
	if err != nil {
		s.logger.Error("failed to load session", "error", err)
		s.send(ctx, msg.ChatID, ReplyTextError)
		return
	}
	if session == nil {
		s.send(ctx, msg.ChatID, ReplyNoPending)
		return
	}
	pending, err := s.uc.Action.Pending(ctx, session.ID)
	if err != nil {
		s.logger.Error("failed to list pending actions", "session_id", session.ID, "error", err)
		s.send(ctx, msg.ChatID, ReplyTextError)
		return
	}
	if len(pending) == 0 {
		s.send(ctx, msg.ChatID, ReplyNoPending)
		return
	}
	for _, a := range pending {
		s.presentAction(ctx, msg.ChatID, a)
	}
}

func (s *BotService) handleText(ctx context.Context, msg *Message) {
	result, err := s.uc.Conversation.HandleText(ctx, &usecase.TurnRequest{
		UserID:   msg.UserID,
		UserName: msg.FirstName,
		Text:     msg.Text,
	})
	if err != nil {
		s.logger.Error("text turn failed", "error", err)
		s.send(ctx, msg.ChatID, ReplyTextError)
		return
	}
	s.deliver(ctx, msg.ChatID, result, "")
}

func (s *BotService) handleCalendar(ctx context.Context, msg *Message) {
	result, err := s.uc.Conversation.HandleCalendar(ctx, &usecase.TurnRequest{
		UserID:   msg.UserID,
		UserName: msg.FirstName,
	})
	if err != nil {
		s.logger.Error("calendar turn failed", "error", err)
		s.send(ctx, msg.ChatID, ReplyCalendarError)
		return
	}
	s.deliver(ctx, msg.ChatID, result, "")
}

func (s *BotService) handlePhoto(ctx context.Context, msg *Message) {
	image, mediaType, err := s.chat.DownloadFile(ctx, msg.PhotoFileID)
	if err != nil {
		s.logger.Error("photo download failed", "file_id", msg.PhotoFileID, "error", err)
		s.send(ctx, msg.ChatID, ReplyPhotoError)
		return
	}

	result, err := s.uc.Conversation.HandleImage(ctx, &usecase.TurnRequest{
		UserID:         msg.UserID,
		UserName:       msg.FirstName,
		Image:          image,
		ImageMediaType: mediaType,
		Caption:        msg.Caption,
	})
	if err != nil {
		s.logger.Error("photo turn failed", "error", err)
		s.send(ctx, msg.ChatID, ReplyPhotoError)
		return
	}
	s.deliver(ctx, msg.ChatID, result, ReplyImageActions)
}

// deliver sends the reply, then one confirmation prompt per staged action
func (s *BotService) deliver(ctx context.Context, chatID int64, result *usecase.TurnResult, actionsHeader string) {
	s.send(ctx, chatID, result.Reply)
	if len(result.Actions) == 0 {
		return
	}
	if actionsHeader != "" {
		s.send(ctx, chatID, actionsHeader)
	}
	for _, a := range result.Actions {
		s.metrics.RecordAction(string(a.Kind), string(domain.ActionPending))
		s.presentAction(ctx, chatID, a)
	}
}

func (s *BotService) presentAction(ctx context.Context, chatID int64, a *domain.PendingAction) {
	rows := [][]repo.Button{{
		{Text: "✅ Confirm", Data: CallbackConfirm + a.ID},
		{Text: "❌ Reject", Data: CallbackReject + a.ID},
	}}
	if err := s.chat.SendWithButtons(ctx, chatID, usecase.FormatForConfirmation(a), rows); err != nil {
		s.logger.Error("failed to present action", "action_id", a.ID, "error", err)
	}
}

// HandleCallback handles an inline button press
func (s *BotService) HandleCallback(ctx context.Context, cb *Callback) {
	if !s.Authorized(cb.UserID) {
		s.logger.Warn("unauthorized callback", "user_id", cb.UserID)
		s.metrics.RecordUpdate("callback", "unauthorized")
		s.answer(ctx, cb.ID, ReplyUnauthorized)
		return
	}
	s.metrics.RecordUpdate("callback", "ok")

	switch {
	case strings.HasPrefix(cb.Data, CallbackConfirm):
		id := strings.TrimPrefix(cb.Data, CallbackConfirm)
		s.answer(ctx, cb.ID, "Confirming...")
		s.runExclusive(ctx, cb.ChatID, func(ctx context.Context) {
			s.confirmAction(ctx, cb.ChatID, cb.UserID, id, "button")
		})
	case strings.HasPrefix(cb.Data, CallbackReject):
		id := strings.TrimPrefix(cb.Data, CallbackReject)
		s.answer(ctx, cb.ID, "Rejecting...")
		s.runExclusive(ctx, cb.ChatID, func(ctx context.Context) {
			s.rejectAction(ctx, cb.ChatID, cb.UserID, id, "button")
		})
	case strings.HasPrefix(cb.Data, CallbackPatternYes):
		s.answer(ctx, cb.ID, "")
		s.confirmDefault(ctx, cb.ChatID, cb.UserID, strings.TrimPrefix(cb.Data, CallbackPatternYes))
	case strings.HasPrefix(cb.Data, CallbackPatternNo):
		s.answer(ctx, cb.ID, "")
		s.send(ctx, cb.ChatID, "OK, I won't use it as a default.")
	default:
		s.answer(ctx, cb.ID, "Unknown action")
	}
}

func (s *BotService) confirmAction(ctx context.Context, chatID, userID int64, id, source string) {
	result, err := s.uc.Conversation.ConfirmAndExecute(ctx, id, &domain.Confirmation{UserID: userID, Source: source})
	if err != nil {
		if usecase.IsTransitionError(err) {
			s.send(ctx, chatID, transitionReply(id, err))
			return
		}
		s.logger.Error("action execution failed", "action_id", id, "error", err)
		if result != nil && result.Action != nil {
			s.metrics.RecordAction(string(result.Action.Kind), "failed")
			if result.Action.State == domain.ActionPending {
				s.send(ctx, chatID, fmt.Sprintf(ReplyActionRetry, id, id))
				return
			}
		}
		s.send(ctx, chatID, ReplyActionError)
		return
	}

	s.metrics.RecordAction(string(result.Action.Kind), string(domain.ActionExecuted))
	s.send(ctx, chatID, result.Reply)

	for _, p := range result.Suggestions {
		text := fmt.Sprintf("💡 You've used *%s* %d times as %s. Make it your default?", p.Value, p.Count, strings.ReplaceAll(p.Key, "_", " "))
		rows := [][]repo.Button{{
			{Text: "Yes", Data: CallbackPatternYes + strconv.FormatInt(p.ID, 10)},
			{Text: "No", Data: CallbackPatternNo + strconv.FormatInt(p.ID, 10)},
		}}
		if err := s.chat.SendWithButtons(ctx, chatID, text, rows); err != nil {
			s.logger.Warn("failed to suggest default", "pattern_id", p.ID, "error", err)
		}
	}
}

func (s *BotService) rejectAction(ctx context.Context, chatID, userID int64, id, source string) {
	action, err := s.uc.Conversation.Reject(ctx, id, &domain.Confirmation{UserID: userID, Source: source})
	if err != nil {
		if usecase.IsTransitionError(err) {
			s.send(ctx, chatID, transitionReply(id, err))
			return
		}
		s.logger.Error("action rejection failed", "action_id", id, "error", err)
		s.send(ctx, chatID, ReplyActionError)
		return
	}
	s.metrics.RecordAction(string(action.Kind), string(domain.ActionRejected))
	s.send(ctx, chatID, fmt.Sprintf("❌ Action `%s` rejected.", action.ID))
}

func transitionReply(id string, err error) string {
	switch {
	case errors.Is(err, domain.ErrActionNotFound):
		return fmt.Sprintf("Action `%s` not found.", id)
	case errors.Is(err, domain.ErrActionNotPending):
		return fmt.Sprintf("Action `%s` was already resolved.", id)
	default:
		return fmt.Sprintf("Action `%s` cannot be carried out.", id)
	}
}

func (s *BotService) confirmDefault(ctx context.Context, chatID, userID int64, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		s.send(ctx, chatID, ReplyUnknown)
		return
	}
	p, err := s.uc.Learning.ConfirmDefault(ctx, userID, id)
	if err != nil {
		s.logger.Error("failed to save default", "pattern_id", id, "error", err)
		s.send(ctx, chatID, "Sorry, I couldn't save that default.")
		return
	}
	s.send(ctx, chatID, fmt.Sprintf("👍 Saved *%s* as your default %s.", p.Value, strings.ReplaceAll(p.Key, "_", " ")))
}

func (s *BotService) send(ctx context.Context, chatID int64, text string) {
	if err := s.chat.SendText(ctx, chatID, text); err != nil {
		s.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (s *BotService) answer(ctx context.Context, callbackID, text string) {
	if err := s.chat.AnswerCallback(ctx, callbackID, text); err != nil {
		s.logger.Debug("failed to answer callback", "error", err)
	}
}
