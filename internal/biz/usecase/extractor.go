package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// Context keys attached to extracted actions
const (
	ActionContextContact  = "contact_name"
	ActionContextOther    = "other_person"
	ActionContextPlatform = "platform"
	ActionContextSource   = "source"
)

// Action sources
const (
	SourceExplicit = "explicit"
	SourceImplicit = "implicit"
)

const (
	defaultExplicitConfidence = 0.8
	originalTextLimit         = 500
)

var (
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

	contactRe     = regexp.MustCompile(`(?i)Contact name[:\s]+([^\n]+)`)
	leftSideRe    = regexp.MustCompile(`LEFT side[:\s]+=?\s*([^\n(]+)`)
	platformRe    = regexp.MustCompile(`(?i)(?:App/Platform|Platform)[:\s]+([^\n]+)`)
	emailAddrRe   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	weekdayRe     = regexp.MustCompile(`(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`)
	relativeDayRe = regexp.MustCompile(`(tomorrow|today|next week)`)
	dayMonthRe    = regexp.MustCompile(`(\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec))`)
	clockRe       = regexp.MustCompile(`(\d{1,2}:\d{2}\s*(?:am|pm)?)`)
	meridiemRe    = regexp.MustCompile(`(\d{1,2}\s*(?:am|pm))`)
)

var (
	calendarKeywords = []string{"meeting", "appointment", "schedule", "book", "calendar"}
	emailKeywords    = []string{"email", "send", "reply", "message"}
	todoKeywords     = []string{"todo", "task", "remind", "remember", "don't forget"}
	whatsAppVerbs    = []string{"send", "reply", "message", "tell", "text"}
)

// ActionExtractor finds actionable items in assistant output.
// It only produces candidates; nothing it returns is ever executed directly.
type ActionExtractor struct {
	logger *slog.Logger
}

// NewActionExtractor creates a new extractor
func NewActionExtractor(logger *slog.Logger) *ActionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionExtractor{logger: logger}
}

// Extract returns explicit actions, plus implicit ones when implicit is set.
// Returned actions have no ID or session yet.
func (e *ActionExtractor) Extract(text string, implicit bool) []*domain.PendingAction {
	convCtx := e.ConversationContext(text)

	actions := e.ExtractExplicit(text, convCtx)
	if implicit {
		actions = append(actions, e.ExtractImplicit(text, convCtx)...)
	}
	return actions
}

// ConversationContext pulls contact, other participant and platform out of
// a screenshot analysis
func (e *ActionExtractor) ConversationContext(text string) map[string]string {
	ctx := map[string]string{}

	if m := contactRe.FindStringSubmatch(text); m != nil {
		ctx[ActionContextContact] = strings.TrimSpace(m[1])
	}

	if _, after, ok := strings.Cut(text, "PARTICIPANTS:"); ok {
		section, _, _ := strings.Cut(after, "\n\n")
		if m := leftSideRe.FindStringSubmatch(section); m != nil {
			ctx[ActionContextOther] = strings.TrimSpace(m[1])
		}
	}

	if m := platformRe.FindStringSubmatch(text); m != nil {
		ctx[ActionContextPlatform] = strings.TrimSpace(m[1])
	}

	return ctx
}

// ExtractExplicit parses fenced json blocks carrying an "action" or "type" field
func (e *ActionExtractor) ExtractExplicit(text string, convCtx map[string]string) []*domain.PendingAction {
	var actions []*domain.PendingAction

	for _, m := range jsonBlockRe.FindAllStringSubmatch(text, -1) {
		data, err := decodeActionJSON(m[1])
		if err != nil {
			e.logger.Debug("skipping unparseable action block", "error", err, "block", truncate(m[1], 200))
			continue
		}

		name, _ := data["action"].(string)
		if name == "" {
			name, _ = data["type"].(string)
		}
		if name == "" {
			continue
		}
		kind, ok := domain.ParseActionKind(name)
		if !ok {
			e.logger.Debug("skipping unknown action type", "type", name)
			continue
		}

		params, _ := data["parameters"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		confidence := defaultExplicitConfidence
		if c, ok := data["confidence"].(float64); ok && c >= 0 && c <= 1 {
			confidence = c
		}

		actions = append(actions, &domain.PendingAction{
			Kind:       kind,
			Parameters: params,
			Context:    withSource(convCtx, SourceExplicit),
			Confidence: confidence,
			State:      domain.ActionPending,
		})
	}

	return actions
}

// ExtractImplicit applies keyword and pattern heuristics to free text
func (e *ActionExtractor) ExtractImplicit(text string, convCtx map[string]string) []*domain.PendingAction {
	var actions []*domain.PendingAction
	lower := strings.ToLower(text)
	original := truncate(text, originalTextLimit)

	if containsAny(lower, calendarKeywords) {
		var dates, times []string
		dates = append(dates, weekdayRe.FindAllString(lower, -1)...)
		dates = append(dates, relativeDayRe.FindAllString(lower, -1)...)
		dates = append(dates, dayMonthRe.FindAllString(lower, -1)...)
		times = append(times, clockRe.FindAllString(lower, -1)...)
		times = append(times, meridiemRe.FindAllString(lower, -1)...)

		if len(dates) > 0 || len(times) > 0 {
			params := map[string]any{
				"extracted_dates": dates,
				"extracted_times": times,
				"original_text":   original,
			}
			if other := convCtx[ActionContextOther]; other != "" {
				params["suggested_attendee"] = other
			}
			confidence := 0.5
			if len(dates) > 0 && len(times) > 0 {
				confidence = 0.7
			}
			actions = append(actions, &domain.PendingAction{
				Kind:       domain.ActionCalendar,
				Parameters: params,
				Context:    withSource(convCtx, SourceImplicit),
				Confidence: confidence,
				State:      domain.ActionPending,
			})
		}
	}

	if containsAny(lower, emailKeywords) {
		emails := emailAddrRe.FindAllString(text, -1)
		if len(emails) > 0 || strings.Contains(lower, "email") {
			confidence := 0.4
			if len(emails) > 0 {
				confidence = 0.6
			}
			if emails == nil {
				emails = []string{}
			}
			actions = append(actions, &domain.PendingAction{
				Kind: domain.ActionEmail,
				Parameters: map[string]any{
					"extracted_emails": emails,
					"original_text":    original,
				},
				Context:    withSource(convCtx, SourceImplicit),
				Confidence: confidence,
				State:      domain.ActionPending,
			})
		}
	}

	if strings.Contains(lower, "whatsapp") && containsAny(lower, whatsAppVerbs) {
		params := map[string]any{"original_text": original}
		if to := firstNonEmpty(convCtx[ActionContextOther], convCtx[ActionContextContact]); to != "" {
			params["suggested_recipient"] = to
		}
		actions = append(actions, &domain.PendingAction{
			Kind:       domain.ActionWhatsApp,
			Parameters: params,
			Context:    withSource(convCtx, SourceImplicit),
			Confidence: 0.5,
			State:      domain.ActionPending,
		})
	}

	if containsAny(lower, todoKeywords) {
		actions = append(actions, &domain.PendingAction{
			Kind:       domain.ActionTask,
			Parameters: map[string]any{"original_text": original},
			Context:    withSource(convCtx, SourceImplicit),
			Confidence: 0.5,
			State:      domain.ActionPending,
		})
	}

	return actions
}

// FormatForConfirmation renders the prompt shown next to the confirm/reject buttons
func FormatForConfirmation(a *domain.PendingAction) string {
	var sb strings.Builder
	implicit := a.Context[ActionContextSource] == SourceImplicit

	switch a.Kind {
	case domain.ActionCalendar:
		sb.WriteString("📅 *Calendar Event Detected*\n")
		if implicit {
			sb.WriteString(fmt.Sprintf("Dates mentioned: %s\n", joinOr(a.StringsParam("extracted_dates"), "None found")))
			sb.WriteString(fmt.Sprintf("Times mentioned: %s\n", joinOr(a.StringsParam("extracted_times"), "None found")))
			if attendee := a.StringParam("suggested_attendee"); attendee != "" {
				sb.WriteString(fmt.Sprintf("Suggested attendee: *%s* (from conversation)\n", attendee))
			}
			if platform := a.Context[ActionContextPlatform]; platform != "" {
				sb.WriteString(fmt.Sprintf("Source: %s conversation\n", platform))
			}
			sb.WriteString("\nTo create this event, I need:\n- Event title\n- Exact date and time\n- Duration\n- Location (optional)\n- Attendees (optional)\n")
		} else {
			writeParams(&sb, a.Parameters)
		}
		sb.WriteString("\nShould I help you create this calendar event?")

	case domain.ActionEmail:
		sb.WriteString("✉️ *Email Action Detected*\n")
		if implicit {
			sb.WriteString(fmt.Sprintf("Email addresses found: %s\n", joinOr(a.StringsParam("extracted_emails"), "None")))
			sb.WriteString("\nTo send this email, I need:\n- Recipient email address\n- Subject\n- Message body\n")
		} else {
			writeParams(&sb, a.Parameters)
		}
		sb.WriteString("\nShould I help you draft this email?")

	case domain.ActionWhatsApp:
		sb.WriteString("💬 *WhatsApp Message Detected*\n")
		if implicit {
			if to := a.StringParam("suggested_recipient"); to != "" {
				sb.WriteString(fmt.Sprintf("Suggested recipient: *%s*\n", to))
			}
			sb.WriteString("\nTo send this message, I need:\n- Recipient\n- Message text\n")
		} else {
			writeParams(&sb, a.Parameters)
		}
		sb.WriteString("\nShould I send this WhatsApp message?")

	case domain.ActionTask:
		sb.WriteString("✅ *Todo/Reminder Detected*\n")
		if implicit {
			sb.WriteString("\nTo add this task, I need:\n- Task description\n- Due date (optional)\n- Priority (optional)\n")
		} else {
			writeParams(&sb, a.Parameters)
		}
		sb.WriteString("\nShould I add this to your todo list?")

	default:
		sb.WriteString(fmt.Sprintf("Action detected: %s", a.Kind))
	}

	if a.ID != "" {
		sb.WriteString(fmt.Sprintf("\n\nID: `%s`", a.ID))
	}
	return sb.String()
}

func decodeActionJSON(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &data); err != nil {
		return nil, fmt.Errorf("decode repaired json: %w", err)
	}
	return data, nil
}

func writeParams(sb *strings.Builder, params map[string]any) {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "original_text" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if nested, ok := params[k].(map[string]any); ok && len(nested) > 0 {
			sb.WriteString(humanizeKey(k) + ":\n")
			var inner strings.Builder
			writeParams(&inner, nested)
			for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
				sb.WriteString("  " + line + "\n")
			}
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", humanizeKey(k), formatValue(params[k])))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	case nil:
		return "-"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func humanizeKey(k string) string {
	k = strings.ReplaceAll(k, "_", " ")
	if k == "" {
		return k
	}
	return strings.ToUpper(k[:1]) + k[1:]
}

func withSource(convCtx map[string]string, source string) map[string]string {
	out := make(map[string]string, len(convCtx)+1)
	for k, v := range convCtx {
		out[k] = v
	}
	out[ActionContextSource] = source
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
