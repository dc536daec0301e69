// Package call implements the client-side call signaling state machine: it
// owns the single call session, validates signal transitions, drives
// offer/answer negotiation, and decides teardown reasons.
package call

import (
	"fmt"
	"log"
	"sync"
	"time"

	"vox_chat/native/internal/domain"

	"github.com/google/uuid"
)

// Status is the call session state. No other states exist.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusOutgoing Status = "outgoing"
	StatusIncoming Status = "incoming"
	StatusActive   Status = "active"
)

// View is a read-only snapshot of the call session for the presentation
// layer.
type View struct {
	Status       Status
	CallID       string
	CallType     domain.CallType
	Conversation domain.Conversation
	IsCaller     bool
	Muted        bool
	CameraOff    bool
	Duration     time.Duration
	LocalTracks  []domain.TrackInfo
	RemoteTracks []domain.TrackInfo
}

// Machine holds at most one non-idle call session at a time. Signal and media
// callbacks arrive on arbitrary goroutines; every transition is serialized
// behind one mutex, so the session is never observed half-initialized or
// half-torn-down.
type Machine struct {
	mu       sync.Mutex
	self     domain.User
	sig      domain.Signaler
	newMedia func() domain.Media
	reporter domain.Reporter
	notify   func(text string)
	onChange func(View)
	newID    func() string
	now      func() time.Time

	media           domain.Media
	earlyCandidates []earlyCandidate

	status            Status
	callID            string
	callType          domain.CallType
	conversation      domain.Conversation
	isCaller          bool
	initiatorID       int
	remoteDescription *domain.SessionDescription
	remoteTracks      []domain.TrackInfo
	muted             bool
	cameraOff         bool
	startedAt         time.Time
}

// earlyCandidate is a remote candidate that arrived before a media session
// existed, kept with its call ID so stragglers from a previous call are never
// fed into the next one.
type earlyCandidate struct {
	callID  string
	payload domain.CandidatePayload
}

// NewMachine creates an idle state machine. Call SetSignaler before use to
// complete the circular dependency (Machine needs Signaler, the relay client
// needs a SignalHandler).
func NewMachine(self domain.User, newMedia func() domain.Media, reporter domain.Reporter, notify func(string)) *Machine {
	return &Machine{
		self:     self,
		newMedia: newMedia,
		reporter: reporter,
		notify:   notify,
		newID:    uuid.NewString,
		now:      time.Now,
		status:   StatusIdle,
	}
}

// SetSignaler injects the signaler after construction.
func (m *Machine) SetSignaler(sig domain.Signaler) {
	m.mu.Lock()
	m.sig = sig
	m.mu.Unlock()
}

// SetOnChange registers the view-change callback. The callback runs inside a
// transition and must not call back into the machine.
func (m *Machine) SetOnChange(fn func(View)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Snapshot returns the current session view.
func (m *Machine) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// StartCall begins an outgoing call: acquires media, creates the connection,
// and sends the offer. Rejected with domain.ErrBusy unless the machine is
// idle.
func (m *Machine) StartCall(conv domain.Conversation, callType domain.CallType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIdle {
		m.notifyf("Another call is already active")
		return domain.ErrBusy
	}

	media := m.newMedia()
	if err := media.Acquire(callType); err != nil {
		media.Release()
		m.notifyf("Unable to start the call")
		return err
	}
	if err := media.CreatePeerConnection(m.mediaEvents()); err != nil {
		media.Release()
		m.notifyf("Unable to start the call")
		return err
	}
	offer, err := media.CreateOffer()
	if err != nil {
		media.Release()
		m.notifyf("Unable to start the call")
		return err
	}

	m.media = media
	m.status = StatusOutgoing
	m.callID = m.newID()
	m.callType = callType
	m.conversation = conv
	m.isCaller = true
	m.initiatorID = m.self.ID

	msg := m.signalMessage(conv, m.callID, callType, domain.SignalOffer, domain.DescriptionPayload(offer))
	if err := m.sendLocked(conv, msg); err != nil {
		log.Printf("[call] %v", err)
		m.notifyf("Unable to start the call")
		m.teardownLocked()
		return err
	}

	log.Printf("[call] outgoing %s call %s to %s", callType, m.callID, conv.Name)
	m.changedLocked()
	return nil
}

// AcceptCall answers the pending incoming call: acquires media, applies the
// buffered offer, and sends the answer. No-op unless a call is incoming.
func (m *Machine) AcceptCall() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIncoming {
		return nil
	}

	media := m.newMedia()
	if err := media.Acquire(m.callType); err != nil {
		media.Release()
		m.notifyf("Unable to join the call")
		m.teardownLocked()
		return err
	}
	if err := media.CreatePeerConnection(m.mediaEvents()); err != nil {
		media.Release()
		m.notifyf("Unable to join the call")
		m.teardownLocked()
		return err
	}
	m.media = media

	// Candidates that raced ahead of the connection go through the media
	// queue so the drain order matches arrival order. Stragglers buffered
	// under another call ID are discarded.
	for _, ec := range m.earlyCandidates {
		if ec.callID == m.callID {
			media.QueueOrApplyCandidate(ec.payload)
		}
	}
	m.earlyCandidates = nil

	if m.remoteDescription != nil {
		if err := media.ApplyRemoteDescription(*m.remoteDescription); err != nil {
			log.Printf("[call] apply buffered offer: %v", err)
			m.notifyf("Unable to join the call")
			m.teardownLocked()
			return err
		}
	}

	answer, err := media.CreateAnswer()
	if err != nil {
		m.notifyf("Unable to join the call")
		m.teardownLocked()
		return err
	}

	m.status = StatusActive
	m.startedAt = m.now()

	msg := m.signalMessage(m.conversation, m.callID, m.callType, domain.SignalAnswer, domain.DescriptionPayload(answer))
	if err := m.sendLocked(m.conversation, msg); err != nil {
		log.Printf("[call] %v", err)
		m.notifyf("Unable to join the call")
		m.teardownLocked()
		return err
	}

	log.Printf("[call] accepted call %s, now active", m.callID)
	m.changedLocked()
	return nil
}

// RejectCall declines the pending incoming call. No-op unless a call is
// incoming.
func (m *Machine) RejectCall() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIncoming {
		return nil
	}

	msg := m.signalMessage(m.conversation, m.callID, m.callType, domain.SignalReject, nil)
	if err := m.sendLocked(m.conversation, msg); err != nil {
		log.Printf("[call] %v", err)
	}

	m.reportLocked(domain.ReasonDeclined)
	m.teardownLocked()
	return nil
}

// HangUp ends the current call: cancel while still ringing, hangup otherwise.
// No-op when idle.
func (m *Machine) HangUp() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusIdle {
		return nil
	}

	signalType := domain.SignalHangup
	if m.status == StatusOutgoing {
		signalType = domain.SignalCancel
	}
	msg := m.signalMessage(m.conversation, m.callID, m.callType, signalType, nil)
	if err := m.sendLocked(m.conversation, msg); err != nil {
		log.Printf("[call] %v", err)
	}

	reason := domain.ReasonCanceled
	switch m.status {
	case StatusActive:
		reason = domain.ReasonCompleted
	case StatusOutgoing:
		reason = domain.ReasonMissed
	}

	m.reportLocked(reason)
	m.teardownLocked()
	return nil
}

// ToggleMute flips local audio enablement. No-op without a local stream.
func (m *Machine) ToggleMute() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.media == nil {
		return
	}
	next := !m.muted
	if !m.media.SetAudioEnabled(!next) {
		return
	}
	m.muted = next
	m.changedLocked()
}

// ToggleCamera flips local video enablement. No-op for audio calls or without
// a local stream.
func (m *Machine) ToggleCamera() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.media == nil || m.callType != domain.CallVideo {
		return
	}
	next := !m.cameraOff
	if !m.media.SetVideoEnabled(!next) {
		return
	}
	m.cameraOff = next
	m.changedLocked()
}

// HandleSignal dispatches one inbound signaling message. Implements
// domain.SignalHandler.
func (m *Machine) HandleSignal(msg domain.SignalMessage) {
	if msg.Sender.ID == m.self.ID {
		return
	}

	switch msg.SignalType {
	case domain.SignalOffer:
		m.handleOffer(msg)
	case domain.SignalAnswer:
		m.handleAnswer(msg)
	case domain.SignalCandidate:
		m.handleCandidate(msg)
	case domain.SignalHangup, domain.SignalReject, domain.SignalCancel, domain.SignalBusy:
		m.handleTerminal(msg)
	default:
		log.Printf("[call] unhandled signal type: %s", msg.SignalType)
	}
}

func (m *Machine) handleOffer(msg domain.SignalMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := domain.ConversationFromSignal(msg)

	if m.status != StatusIdle {
		// Only one offer may be in flight per client: a second inbound
		// offer always yields busy and never touches the current session.
		busy := m.signalMessage(conv, msg.CallID, msg.CallType, domain.SignalBusy, nil)
		if err := m.sendLocked(conv, busy); err != nil {
			log.Printf("[call] %v", err)
		}
		log.Printf("[call] busy reply for call %s from %s", msg.CallID, conv.Name)
		return
	}

	var buffered *domain.SessionDescription
	if len(msg.Payload) > 0 {
		desc, err := domain.ParseDescription(msg.Payload)
		if err != nil {
			log.Printf("[call] offer payload: %v", err)
		} else {
			buffered = &desc
		}
	}

	m.status = StatusIncoming
	m.callID = msg.CallID
	m.callType = msg.CallType
	m.conversation = conv
	m.isCaller = false
	m.initiatorID = msg.Sender.ID
	m.remoteDescription = buffered

	log.Printf("[call] incoming %s call %s from %s", msg.CallType, msg.CallID, conv.Name)
	m.notifyf("Incoming %s call from %s", callLabel(msg.CallType), conv.Name)
	m.changedLocked()
}

func (m *Machine) handleAnswer(msg domain.SignalMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusIdle || msg.CallID != m.callID || m.media == nil {
		log.Printf("[call] ignoring answer for unknown call %s", msg.CallID)
		return
	}

	desc, err := domain.ParseDescription(msg.Payload)
	if err != nil || desc.SDP == "" {
		log.Printf("[call] answer without usable payload for call %s", msg.CallID)
		return
	}

	// Duplicate or late answers arrive after negotiation has progressed
	// (the relay guarantees no ordering); accept only in offer-sent state.
	if !m.media.HasLocalOffer() {
		log.Printf("[call] ignoring answer for call %s: connection not in offer-sent state", msg.CallID)
		return
	}

	if err := m.media.ApplyRemoteDescription(desc); err != nil {
		log.Printf("[call] apply answer: %v", err)
		return
	}

	m.status = StatusActive
	m.startedAt = m.now()
	log.Printf("[call] call %s answered, now active", m.callID)
	m.changedLocked()
}

func (m *Machine) handleCandidate(msg domain.SignalMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIdle && msg.CallID != m.callID {
		log.Printf("[call] dropping candidate for overlapping call %s", msg.CallID)
		return
	}

	c, err := domain.ParseCandidate(msg.Payload)
	if err != nil {
		log.Printf("[call] candidate payload: %v", err)
		return
	}

	if m.media != nil {
		m.media.QueueOrApplyCandidate(c)
		return
	}
	// No connection yet (offer not accepted, or candidate raced ahead of
	// the offer itself) — buffer until the session owns a connection.
	m.earlyCandidates = append(m.earlyCandidates, earlyCandidate{callID: msg.CallID, payload: c})
}

func (m *Machine) handleTerminal(msg domain.SignalMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusIdle || msg.CallID != m.callID {
		log.Printf("[call] ignoring %s for unknown call %s", msg.SignalType, msg.CallID)
		return
	}

	reason := domain.ReasonCanceled
	switch {
	case msg.SignalType == domain.SignalHangup && m.status == StatusActive:
		reason = domain.ReasonCompleted
	case msg.SignalType == domain.SignalReject:
		reason = domain.ReasonDeclined
	case msg.SignalType == domain.SignalBusy:
		reason = domain.ReasonMissed
	}

	log.Printf("[call] remote %s on call %s", msg.SignalType, m.callID)
	m.reportLocked(reason)
	m.teardownLocked()
}

// mediaEvents wires media session callbacks back into the machine.
func (m *Machine) mediaEvents() domain.MediaEvents {
	return domain.MediaEvents{
		OnRemoteTrack:    m.handleRemoteTrack,
		OnLocalCandidate: m.handleLocalCandidate,
		OnDisconnected:   m.handleDisconnected,
	}
}

func (m *Machine) handleRemoteTrack(info domain.TrackInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusIdle {
		return
	}
	m.remoteTracks = append(m.remoteTracks, info)
	m.changedLocked()
}

func (m *Machine) handleLocalCandidate(c domain.CandidatePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusIdle {
		return
	}
	msg := m.signalMessage(m.conversation, m.callID, m.callType, domain.SignalCandidate, domain.CandidateSignalPayload(c))
	if err := m.sendLocked(m.conversation, msg); err != nil {
		// One lost candidate is not fatal; others may still connect.
		log.Printf("[call] %v", err)
	}
}

func (m *Machine) handleDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusIdle {
		return
	}

	// A network drop is not a clean hangup: never report completed.
	reason := domain.ReasonCanceled
	if m.status == StatusOutgoing {
		reason = domain.ReasonMissed
	}

	log.Printf("[call] connection lost on call %s", m.callID)
	m.reportLocked(reason)
	m.teardownLocked()
	m.notifyf("Call disconnected")
}

// reportLocked hands the summary to the reporter before the session fields
// are reset. The reporter is idempotent per call ID and never blocks.
func (m *Machine) reportLocked(reason domain.SummaryReason) {
	if m.reporter == nil {
		return
	}
	var d time.Duration
	if !m.startedAt.IsZero() {
		d = m.now().Sub(m.startedAt)
	}
	m.reporter.Report(domain.Summary{
		CallID:       m.callID,
		CallType:     m.callType,
		Reason:       reason,
		Duration:     d,
		Conversation: m.conversation,
		InitiatedBy:  m.initiatorID,
	})
}

// teardownLocked resets the session to idle and releases the media session.
// The idle reset happens before Release returns, so a racing StartCall can
// never observe a half-torn-down session.
func (m *Machine) teardownLocked() {
	m.status = StatusIdle
	m.callID = ""
	m.callType = ""
	m.conversation = domain.Conversation{}
	m.isCaller = false
	m.initiatorID = 0
	m.remoteDescription = nil
	m.remoteTracks = nil
	m.muted = false
	m.cameraOff = false
	m.startedAt = time.Time{}
	m.earlyCandidates = nil

	if m.media != nil {
		m.media.Release()
		m.media = nil
	}
	m.changedLocked()
}

func (m *Machine) signalMessage(conv domain.Conversation, callID string, callType domain.CallType, signalType domain.SignalType, payload []byte) domain.SignalMessage {
	msg := domain.SignalMessage{
		CallID:     callID,
		CallType:   callType,
		SignalType: signalType,
		Payload:    payload,
		Sender:     m.self,
	}
	if conv.IsGroup {
		gid := conv.ID
		msg.GroupID = &gid
	} else {
		rid := conv.ID
		msg.ReceiverID = &rid
	}
	return msg
}

func (m *Machine) sendLocked(conv domain.Conversation, msg domain.SignalMessage) error {
	if m.sig == nil {
		return fmt.Errorf("send %s: no signaler attached", msg.SignalType)
	}
	if err := m.sig.Send(conv.ChannelName(m.self.ID), msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.SignalType, err)
	}
	return nil
}

func (m *Machine) viewLocked() View {
	v := View{
		Status:       m.status,
		CallID:       m.callID,
		CallType:     m.callType,
		Conversation: m.conversation,
		IsCaller:     m.isCaller,
		Muted:        m.muted,
		CameraOff:    m.cameraOff,
		RemoteTracks: append([]domain.TrackInfo(nil), m.remoteTracks...),
	}
	if m.media != nil {
		v.LocalTracks = m.media.LocalTracks()
	}
	if m.status == StatusActive && !m.startedAt.IsZero() {
		v.Duration = m.now().Sub(m.startedAt)
	}
	return v
}

func (m *Machine) changedLocked() {
	if m.onChange != nil {
		m.onChange(m.viewLocked())
	}
}

func (m *Machine) notifyf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Printf("[call] %s", text)
	if m.notify != nil {
		m.notify(text)
	}
}

func callLabel(t domain.CallType) string {
	if t == domain.CallVideo {
		return "video"
	}
	return "voice"
}
