package domain

import "fmt"

// User identifies a chat participant as carried in signal envelopes.
type User struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Conversation is the target of a call: either a one-to-one peer or a group.
type Conversation struct {
	ID        int
	Name      string
	AvatarURL string
	IsGroup   bool
}

// ChannelName derives the relay channel for this conversation. Group calls
// share a per-group channel; one-to-one calls use a channel keyed by the
// sorted participant pair so both ends subscribe to the same name.
func (c Conversation) ChannelName(selfID int) string {
	if c.IsGroup {
		return fmt.Sprintf("call.group.%d", c.ID)
	}
	lo, hi := selfID, c.ID
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("call.user.%d-%d", lo, hi)
}

// ConversationFromSignal reconstructs the conversation an inbound signal
// belongs to: the group if GroupID is set, otherwise the sender.
func ConversationFromSignal(msg SignalMessage) Conversation {
	if msg.GroupID != nil {
		return Conversation{
			ID:      *msg.GroupID,
			Name:    fmt.Sprintf("Group #%d", *msg.GroupID),
			IsGroup: true,
		}
	}
	return Conversation{
		ID:        msg.Sender.ID,
		Name:      msg.Sender.Name,
		AvatarURL: msg.Sender.AvatarURL,
	}
}
