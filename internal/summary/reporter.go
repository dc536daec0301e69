// Package summary turns terminated calls into human-readable chat messages.
package summary

import (
	"fmt"
	"log"
	"sync"
	"time"

	"vox_chat/native/internal/domain"
)

// Reporter emits at most one summary message per call ID. Posting happens in
// the background: a summary that fails to persist is logged and surfaced as a
// notification, but never blocks or reverses a teardown.
type Reporter struct {
	sender domain.MessageSender
	notify func(text string)

	mu       sync.Mutex
	reported map[string]bool
}

// NewReporter creates a reporter that persists summaries through sender.
// notify may be nil.
func NewReporter(sender domain.MessageSender, notify func(string)) *Reporter {
	return &Reporter{
		sender:   sender,
		notify:   notify,
		reported: make(map[string]bool),
	}
}

// Report composes and posts the summary for one terminated call. Idempotent
// per call ID: repeated reports for the same call are dropped.
func (r *Reporter) Report(s domain.Summary) {
	if s.CallID == "" || s.Conversation == (domain.Conversation{}) {
		return
	}

	r.mu.Lock()
	if r.reported[s.CallID] {
		r.mu.Unlock()
		return
	}
	r.reported[s.CallID] = true
	r.mu.Unlock()

	text := Text(s.Reason, s.CallType, s.Duration)
	if text == "" {
		return
	}

	seconds := int(s.Duration.Round(time.Second).Seconds())
	msg := domain.ChatMessage{
		Message: text,
		Type:    "call_summary",
		Meta: domain.SummaryMeta{
			CallType:          s.CallType,
			Status:            s.Reason,
			DurationSeconds:   seconds,
			FormattedDuration: FormatDuration(s.Duration),
			InitiatedBy:       s.InitiatedBy,
		},
	}
	if s.Conversation.IsGroup {
		gid := s.Conversation.ID
		msg.GroupID = &gid
	} else {
		rid := s.Conversation.ID
		msg.ReceiverID = &rid
	}

	go func() {
		if err := r.sender.StoreMessage(msg); err != nil {
			log.Printf("[summary] store call summary: %v", err)
			if r.notify != nil {
				r.notify("Unable to log call summary")
			}
			return
		}
		log.Printf("[summary] logged %q for call %s", text, s.CallID)
	}()
}

// Text builds the human-readable outcome line for a terminated call.
func Text(reason domain.SummaryReason, callType domain.CallType, d time.Duration) string {
	label := "voice call"
	if callType == domain.CallVideo {
		label = "video call"
	}

	switch reason {
	case domain.ReasonCompleted:
		return "Call ended • " + FormatDuration(d)
	case domain.ReasonMissed:
		return "Missed " + label
	case domain.ReasonCanceled:
		return "Canceled " + label
	case domain.ReasonDeclined:
		return "Declined " + label
	}
	return ""
}

// FormatDuration renders a duration as MM:SS, or HH:MM:SS once it reaches an
// hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	hrs := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	if hrs > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
