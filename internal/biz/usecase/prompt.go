package usecase

import (
	"fmt"
	"strings"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// PromptConfig contains prompt configuration
type PromptConfig struct {
	SystemPrompt               string // Assistant persona and behavioral rules
	ActionInstructions         string // How to propose actions as json blocks
	ConversationAnalysisPrompt string // Used for screenshots of chats
	GeneralImagePrompt         string // Appended to the caption of other images
	CalendarQuery              string // Turn sent by /calendar
}

// DefaultPromptConfig contains default prompt configuration
var DefaultPromptConfig = PromptConfig{
	SystemPrompt: `You are Fede, a personal AI assistant accessible through Telegram. Your role is to help your user manage their digital life through various integrated services.

CORE PERSONALITY TRAITS:
1. Helpful and proactive in understanding user needs
2. EXTREMELY cautious about taking actions without explicit permission
3. Detail-oriented when confirming action parameters
4. Never make assumptions or use defaults without asking
5. Learn from patterns but always confirm before applying them

BEHAVIORAL RULES:

1. ACTION CONFIRMATION:
   - NEVER execute an action without showing ALL details first
   - Present actions in a clear, structured format
   - Wait for explicit "yes", "confirm", or similar approval
   - If user says "no" or wants changes, gather new parameters

2. PARAMETER GATHERING:
   - Ask for EVERY required parameter explicitly
   - No silent defaults - if something needs a value, ask for it
   - When referencing past information (like "the person who emailed me"), find and show the specific details
   - Present gathered information clearly before proceeding

3. LEARNING AND PATTERNS:
   - Track repeated behaviors and preferences
   - After observing a pattern 3+ times, ASK if it should become a default
   - Even with learned defaults, always show them and allow modification
   - Never apply learned patterns without mentioning them

4. COMMUNICATION STYLE:
   - Be concise but thorough
   - Use structured formats for complex information
   - Acknowledge requests immediately
   - Provide status updates for long operations
   - Be friendly but professional

5. ERROR HANDLING:
   - Explain errors clearly without technical jargon
   - Suggest alternatives when something fails
   - Never retry without permission
   - Keep user informed of issues

Remember: You are a helpful assistant, but you NEVER take action without explicit permission and complete parameter confirmation.`,
	ActionInstructions: `## Proposing actions
When all parameters of an action are known, propose it by including exactly one fenced block per action:

` + "```json" + `
{"action": "email", "parameters": {"to": "john@example.com", "subject": "...", "body": "..."}}
` + "```" + `

Valid actions: calendar_event, email, whatsapp, todo. The user will see confirm/reject buttons for each block.
Tools that create, send or modify anything are held for the user's confirmation; read-only tools run immediately.
A message starting with "CONFIRMED ACTION" means the user approved it: carry it out with the available tools and report the result.`,
	ConversationAnalysisPrompt: `Analyze this screenshot of a conversation. Please extract and provide:

1. **CONVERSATION METADATA:**
   - App/Platform (WhatsApp, Telegram, iMessage, etc.)
   - Contact name (usually shown at the top)
   - Time/date information visible

2. **PARTICIPANTS:**
   - Messages on the RIGHT side = User (the person showing the screenshot)
   - Messages on the LEFT side = Other person (extract their name from the header)

3. **CONVERSATION FLOW:**
   - Summarize what each person is saying
   - Note any commitments, plans, or requests

4. **ACTIONABLE ITEMS:**
   Identify any actions needed:
   - Meetings/appointments to schedule (with WHO, WHEN, WHERE)
   - Messages to send or reply to
   - Tasks to complete
   - Information to remember

5. **EXTRACTED DATA:**
   Pull out specific details:
   - Names mentioned
   - Dates/times mentioned
   - Locations mentioned
   - Phone numbers or emails
   - Any other relevant data

Format your response clearly with these sections. Be specific about WHO is involved in any actions.`,
	GeneralImagePrompt: `Analyze this image and describe what you see. If it contains text, transcribe it.
If it shows any actionable items (calendar events, emails, tasks), identify them clearly.`,
	CalendarQuery: "List my upcoming calendar events for the next 7 days. Format them nicely with date, time, and title.",
}

// DefaultCaption is the caption used when a photo arrives without one
const DefaultCaption = "What's in this image?"

var chatAppHints = []string{"conversation", "chat", "message", "whatsapp", "telegram", "imessage"}

// PromptBuilder assembles system prompts and image turns
type PromptBuilder struct {
	cfg PromptConfig
}

// NewPromptBuilder creates a prompt builder, filling empty fields from defaults
func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	d := DefaultPromptConfig
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = d.SystemPrompt
	}
	if cfg.ActionInstructions == "" {
		cfg.ActionInstructions = d.ActionInstructions
	}
	if cfg.ConversationAnalysisPrompt == "" {
		cfg.ConversationAnalysisPrompt = d.ConversationAnalysisPrompt
	}
	if cfg.GeneralImagePrompt == "" {
		cfg.GeneralImagePrompt = d.GeneralImagePrompt
	}
	if cfg.CalendarQuery == "" {
		cfg.CalendarQuery = d.CalendarQuery
	}
	return &PromptBuilder{cfg: cfg}
}

// Config returns the effective configuration
func (b *PromptBuilder) Config() PromptConfig {
	return b.cfg
}

// SystemPrompt builds the system prompt for a session.
// Learned defaults are listed as known preferences, never applied silently.
func (b *PromptBuilder) SystemPrompt(session *domain.Session, defaults []*domain.UserPattern, integrations []string) string {
	parts := []string{b.cfg.SystemPrompt, b.cfg.ActionInstructions}

	if len(integrations) > 0 {
		parts = append(parts, "Connected integrations: "+strings.Join(integrations, ", "))
	}

	var facts []string
	if session != nil {
		if name := session.ContextValue(domain.ContextUserName); name != "" {
			facts = append(facts, fmt.Sprintf("User's name: %s", name))
		}
		if tz := session.ContextValue(domain.ContextTimezone); tz != "" {
			facts = append(facts, fmt.Sprintf("User's timezone: %s", tz))
		}
	}

	prefs := make([]string, 0, len(defaults)+1)
	if session != nil {
		if p := session.ContextValue(domain.ContextPreferences); p != "" {
			prefs = append(prefs, p)
		}
	}
	for _, d := range defaults {
		prefs = append(prefs, fmt.Sprintf("default %s is %s", strings.ReplaceAll(d.Key, "_", " "), d.Value))
	}
	if len(prefs) > 0 {
		facts = append(facts, "Known preferences: "+strings.Join(prefs, "; "))
	}

	if len(facts) > 0 {
		parts = append(parts, strings.Join(facts, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// ImagePrompt picks the analysis prompt for a photo caption.
// Captions mentioning a chat app, and empty captions, get the conversation analysis prompt.
func (b *PromptBuilder) ImagePrompt(caption string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" || strings.EqualFold(caption, DefaultCaption) || containsAny(strings.ToLower(caption), chatAppHints) {
		return b.cfg.ConversationAnalysisPrompt
	}
	return caption + "\n\n" + b.cfg.GeneralImagePrompt
}

// CalendarQuery returns the turn used to list upcoming events
func (b *PromptBuilder) CalendarQuery() string {
	return b.cfg.CalendarQuery
}

// ConfirmedActionTurn builds the follow-up turn that hands an approved action back to the model
func ConfirmedActionTurn(a *domain.PendingAction) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("CONFIRMED ACTION %s (%s). The user approved it. Carry it out now with these parameters:\n", a.ID, a.Kind))
	writeParams(&sb, a.Parameters)
	if orig := a.StringParam("original_text"); orig != "" {
		sb.WriteString("\nContext:\n")
		sb.WriteString(orig)
	}
	return sb.String()
}
