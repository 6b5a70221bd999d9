package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/socialpulse/socialpulse/internal/money"
)

// State is a provider status mapped onto the order lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StatePartial    State = "partial"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateExpired    State = "expired"
	StateUnknown    State = "unknown"
)

var stateAliases = map[string]State{
	"pending":          StatePending,
	"queued":           StatePending,
	"new":              StatePending,
	"ongoing":          StateProcessing,
	"processing":       StateProcessing,
	"in progress":      StateProcessing,
	"in_progress":      StateProcessing,
	"active":           StateProcessing,
	"status_wait_code": StateProcessing,
	"completed":        StateCompleted,
	"complete":         StateCompleted,
	"success":          StateCompleted,
	"successful":       StateCompleted,
	"paid":             StateCompleted,
	"finished":         StateCompleted,
	"status_ok":        StateCompleted,
	"partial":          StatePartial,
	"failed":           StateFailed,
	"failure":          StateFailed,
	"error":            StateFailed,
	"abandoned":        StateFailed,
	"reversed":         StateFailed,
	"declined":         StateFailed,
	"canceled":         StateCancelled,
	"cancelled":        StateCancelled,
	"refunded":         StateCancelled,
	"status_cancel":    StateCancelled,
	"expired":          StateExpired,
	"timeout":          StateExpired,
}

// NormalizeState maps a raw provider status onto a State. Anything
// unrecognised, including non-string values, yields StateUnknown.
func NormalizeState(raw any) State {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case State:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		return StateUnknown
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if state, ok := stateAliases[s]; ok {
		return state
	}
	return StateUnknown
}

// StatusFromPayload builds a Status from decoded provider JSON. It never fails:
// missing or malformed fields are left zero.
func StatusFromPayload(payload map[string]any) Status {
	st := Status{State: StateUnknown, Raw: payload}
	if payload == nil {
		return st
	}
	st.State = NormalizeState(payload["status"])
	st.Amount = money.ToDecimal(payload["amount"])
	st.Charge = money.ToDecimal(payload["charge"])
	if cur, ok := payload["currency"].(string); ok {
		st.Currency = money.NormalizeCurrency(cur)
	}
	st.StartCount = money.ToDecimal(payload["start_count"]).IntPart()
	st.Remains = money.ToDecimal(payload["remains"]).IntPart()

	switch sms := payload["sms"].(type) {
	case string:
		if strings.TrimSpace(sms) != "" {
			st.Messages = append(st.Messages, Message{Text: sms, ReceivedAt: time.Now().UTC()})
		}
	case []any:
		for _, item := range sms {
			switch m := item.(type) {
			case string:
				if strings.TrimSpace(m) != "" {
					st.Messages = append(st.Messages, Message{Text: m, ReceivedAt: time.Now().UTC()})
				}
			case map[string]any:
				text, _ := m["text"].(string)
				if strings.TrimSpace(text) == "" {
					continue
				}
				msg := Message{Text: text, ReceivedAt: time.Now().UTC()}
				if at, ok := m["received_at"].(string); ok {
					if ts, err := time.Parse(time.RFC3339, at); err == nil {
						msg.ReceivedAt = ts.UTC()
					}
				}
				st.Messages = append(st.Messages, msg)
			}
		}
	}
	return st
}

// IsTerminal reports whether the provider will not change the state again.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StatePartial, StateFailed, StateCancelled, StateExpired:
		return true
	}
	return false
}
