package domain

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeDescription(t *testing.T) {
	original := SessionDescription{Type: "offer", SDP: "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"}

	encoded := EncodeDescription(original)
	if encoded.SDP == original.SDP {
		t.Errorf("SDP not encoded for transport")
	}

	decoded, err := DecodeDescription(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}
}

func TestDecodeDescription_InvalidBase64(t *testing.T) {
	_, err := DecodeDescription(SessionDescription{Type: "offer", SDP: "not base64!!!"})
	if err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestParseDescription_RoundTripsThroughPayload(t *testing.T) {
	encoded := EncodeDescription(SessionDescription{Type: "answer", SDP: "v=0"})
	payload := DescriptionPayload(encoded)

	parsed, err := ParseDescription(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != encoded {
		t.Errorf("payload roundtrip mismatch: %+v", parsed)
	}
}

func TestParseCandidate(t *testing.T) {
	mid := "0"
	payload := CandidateSignalPayload(CandidatePayload{
		Candidate: ICECandidate{Candidate: "candidate:1 1 udp 2122260223 192.168.1.5 54321 typ host", SDPMid: &mid},
	})

	c, err := ParseCandidate(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Candidate.SDPMid == nil || *c.Candidate.SDPMid != "0" {
		t.Errorf("sdpMid lost: %+v", c.Candidate)
	}
}

func TestParseCandidate_EmptyCandidateRejected(t *testing.T) {
	if _, err := ParseCandidate(json.RawMessage(`{"candidate":{"candidate":""}}`)); err == nil {
		t.Fatalf("expected error for empty candidate")
	}
	if _, err := ParseCandidate(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestChannelName(t *testing.T) {
	tests := []struct {
		name   string
		conv   Conversation
		selfID int
		want   string
	}{
		{"pair lower self", Conversation{ID: 9}, 4, "call.user.4-9"},
		{"pair higher self", Conversation{ID: 4}, 9, "call.user.4-9"},
		{"group", Conversation{ID: 12, IsGroup: true}, 4, "call.group.12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conv.ChannelName(tt.selfID); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConversationFromSignal(t *testing.T) {
	gid := 5
	msg := SignalMessage{GroupID: &gid, Sender: User{ID: 2, Name: "bob"}}
	conv := ConversationFromSignal(msg)
	if !conv.IsGroup || conv.ID != 5 {
		t.Errorf("expected group conversation, got %+v", conv)
	}

	msg = SignalMessage{Sender: User{ID: 2, Name: "bob", AvatarURL: "https://cdn/b.png"}}
	conv = ConversationFromSignal(msg)
	if conv.IsGroup || conv.ID != 2 || conv.Name != "bob" || conv.AvatarURL != "https://cdn/b.png" {
		t.Errorf("expected sender conversation, got %+v", conv)
	}
}

func TestSignalMessage_WireShape(t *testing.T) {
	rid := 2
	msg := SignalMessage{
		CallID:     "c-1",
		CallType:   CallVideo,
		SignalType: SignalOffer,
		ReceiverID: &rid,
		Sender:     User{ID: 1, Name: "alice"},
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"call_id", "call_type", "signal_type", "group_id", "receiver_id", "sender"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing wire field %q", key)
		}
	}
	if string(fields["group_id"]) != "null" {
		t.Errorf("group_id should marshal as null when unset, got %s", fields["group_id"])
	}
}
