package domain

import "time"

// Signaler publishes signaling messages to the relay. Delivery is at-most-once
// with no ordering guarantee; a failed send is returned to the caller.
type Signaler interface {
	Send(channel string, msg SignalMessage) error
}

// SignalHandler receives inbound signaling messages addressed to this client.
type SignalHandler interface {
	HandleSignal(msg SignalMessage)
}

// TrackInfo describes a media track surfaced to the presentation layer.
type TrackInfo struct {
	Kind  string
	Codec string
}

// MediaEvents are the callbacks a media session fires. All of them may be
// invoked from transport goroutines at arbitrary times.
type MediaEvents struct {
	// OnRemoteTrack fires when a remote media track arrives.
	OnRemoteTrack func(TrackInfo)
	// OnLocalCandidate fires for each locally discovered ICE candidate.
	OnLocalCandidate func(CandidatePayload)
	// OnDisconnected fires once when the connection state reaches
	// failed or disconnected.
	OnDisconnected func()
}

// Media owns exactly one peer connection and one local capture stream for a
// single call attempt. Release must be idempotent and safe without a
// connection.
type Media interface {
	Acquire(callType CallType) error
	CreatePeerConnection(ev MediaEvents) error
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	ApplyRemoteDescription(d SessionDescription) error
	QueueOrApplyCandidate(c CandidatePayload)
	HasLocalOffer() bool
	SetAudioEnabled(enabled bool) bool
	SetVideoEnabled(enabled bool) bool
	LocalTracks() []TrackInfo
	Release()
}

// SummaryReason is the recorded outcome of a terminated call.
type SummaryReason string

const (
	ReasonCompleted SummaryReason = "completed"
	ReasonMissed    SummaryReason = "missed"
	ReasonCanceled  SummaryReason = "canceled"
	ReasonDeclined  SummaryReason = "declined"
)

// Summary describes one terminated call.
type Summary struct {
	CallID       string
	CallType     CallType
	Reason       SummaryReason
	Duration     time.Duration
	Conversation Conversation
	InitiatedBy  int
}

// Reporter persists a call outcome as a chat message. Implementations must be
// idempotent per call ID and must never block the caller's teardown.
type Reporter interface {
	Report(s Summary)
}

// SummaryMeta is the structured metadata attached to a call-summary message.
type SummaryMeta struct {
	CallType          CallType      `json:"call_type"`
	Status            SummaryReason `json:"status"`
	DurationSeconds   int           `json:"duration_seconds"`
	FormattedDuration string        `json:"formatted_duration"`
	InitiatedBy       int           `json:"initiated_by"`
}

// ChatMessage is the payload handed to the external message-send collaborator.
type ChatMessage struct {
	Message    string      `json:"message"`
	Type       string      `json:"type"`
	Meta       SummaryMeta `json:"meta"`
	ReceiverID *int        `json:"receiver_id,omitempty"`
	GroupID    *int        `json:"group_id,omitempty"`
}

// MessageSender posts chat messages to the chat server.
type MessageSender interface {
	StoreMessage(msg ChatMessage) error
}
