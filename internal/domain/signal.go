package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// CallType distinguishes voice-only calls from video calls. Fixed for the
// lifetime of a call session.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// SignalType tags a signaling message. Offer/answer carry an SDP payload,
// candidate carries an ICE candidate, the terminal types carry no payload.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalHangup    SignalType = "hangup"
	SignalReject    SignalType = "reject"
	SignalCancel    SignalType = "cancel"
	SignalBusy      SignalType = "busy"
)

// SignalMessage is the envelope relayed between call participants. The relay
// treats it as opaque; routing is derived from GroupID/ReceiverID/Sender.
type SignalMessage struct {
	CallID     string          `json:"call_id"`
	CallType   CallType        `json:"call_type"`
	SignalType SignalType      `json:"signal_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	GroupID    *int            `json:"group_id"`
	ReceiverID *int            `json:"receiver_id"`
	Sender     User            `json:"sender"`
}

// SessionDescription is the JSON structure for SDP offer/answer payloads.
// On the wire the SDP text is base64-encoded so it survives JSON transport
// untouched; use EncodeDescription/DecodeDescription at the boundary.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload is the JSON structure for ICE candidate payloads.
type CandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
}

// ICECandidate mirrors the browser RTCIceCandidate JSON shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// EncodeDescription returns a copy of d with the SDP base64-encoded for
// transport.
func EncodeDescription(d SessionDescription) SessionDescription {
	return SessionDescription{
		Type: d.Type,
		SDP:  base64.StdEncoding.EncodeToString([]byte(d.SDP)),
	}
}

// DecodeDescription reverses EncodeDescription.
func DecodeDescription(d SessionDescription) (SessionDescription, error) {
	raw, err := base64.StdEncoding.DecodeString(d.SDP)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("decode sdp: %w", err)
	}
	return SessionDescription{Type: d.Type, SDP: string(raw)}, nil
}

// DescriptionPayload marshals an encoded session description for embedding in
// a SignalMessage.
func DescriptionPayload(d SessionDescription) json.RawMessage {
	raw, _ := json.Marshal(d)
	return raw
}

// CandidateSignalPayload marshals an ICE candidate for embedding in a
// SignalMessage.
func CandidateSignalPayload(c CandidatePayload) json.RawMessage {
	raw, _ := json.Marshal(c)
	return raw
}

// ParseDescription extracts a (still encoded) session description from a
// signal payload.
func ParseDescription(payload json.RawMessage) (SessionDescription, error) {
	var d SessionDescription
	if err := json.Unmarshal(payload, &d); err != nil {
		return SessionDescription{}, fmt.Errorf("parse description payload: %w", err)
	}
	return d, nil
}

// ParseCandidate extracts an ICE candidate from a signal payload.
func ParseCandidate(payload json.RawMessage) (CandidatePayload, error) {
	var c CandidatePayload
	if err := json.Unmarshal(payload, &c); err != nil {
		return CandidatePayload{}, fmt.Errorf("parse candidate payload: %w", err)
	}
	if c.Candidate.Candidate == "" {
		return CandidatePayload{}, fmt.Errorf("candidate payload missing candidate field")
	}
	return c, nil
}
