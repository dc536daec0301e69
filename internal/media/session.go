// Package media owns local capture and the WebRTC peer connection for one
// call attempt. It imports only Pion libraries and stdlib; coupling to the
// rest of the client is via the domain ports.
package media

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"vox_chat/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	pion "github.com/pion/webrtc/v4"
)

// Public STUN servers used for NAT traversal, matching the chat frontend.
var iceServers = []pion.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// rtpSender is the part of *webrtc.RTPSender the session needs to switch a
// track on and off.
type rtpSender interface {
	ReplaceTrack(pion.TrackLocal) error
}

// trackSender pairs a captured track with the sender transmitting it, so the
// track can be detached and re-attached without renegotiation.
type trackSender struct {
	kind   string
	track  pion.TrackLocal
	sender rtpSender
}

// Session implements domain.Media: exactly one peer connection and one local
// capture stream, created per call attempt and never reused after Release.
type Session struct {
	mu        sync.Mutex
	pc        *pion.PeerConnection
	stream    mediadevices.MediaStream
	selector  *mediadevices.CodecSelector
	senders   []trackSender
	pending   candidateQueue
	remoteSet bool

	audioOn bool
	videoOn bool

	released atomic.Bool
	failOnce sync.Once
}

// NewSession creates an empty media session.
func NewSession() *Session {
	return &Session{audioOn: true, videoOn: true}
}

// NewMedia is the factory handed to the call state machine.
func NewMedia() domain.Media {
	return NewSession()
}

// Acquire captures the microphone unconditionally and the camera for video
// calls. Fails with domain.ErrMediaUnavailable or
// domain.ErrMediaPermissionDenied; the caller aborts the call attempt.
func (s *Session) Acquire(callType domain.CallType) error {
	stream, selector, err := capture(callType)
	if err != nil {
		return fmt.Errorf("acquire local media: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.selector = selector
	s.mu.Unlock()

	log.Printf("[media] local media captured (%s) — %d tracks", callType, len(stream.GetTracks()))
	return nil
}

// CreatePeerConnection instantiates the single connection for this session
// and wires the event callbacks. Local tracks acquired earlier are attached.
func (s *Session) CreatePeerConnection(ev domain.MediaEvents) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc != nil {
		return fmt.Errorf("peer connection already exists")
	}
	if s.released.Load() {
		return fmt.Errorf("session already released")
	}

	m := &pion.MediaEngine{}
	if s.selector != nil {
		s.selector.Populate(m)
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(pion.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.pc = pc

	if s.stream != nil {
		for _, track := range s.stream.GetTracks() {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Printf("[media] local track ended: %v", err)
				}
			})
			sender, err := pc.AddTrack(track)
			if err != nil {
				log.Printf("[media] add local track: %v", err)
				continue
			}
			s.senders = append(s.senders, trackSender{
				kind:   track.Kind().String(),
				track:  track,
				sender: sender,
			})
		}
	}

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if s.released.Load() {
			return
		}
		codec := track.Codec()
		log.Printf("[media] got remote track: kind=%s codec=%s", track.Kind(), codec.MimeType)
		go drainTrack(track)
		if ev.OnRemoteTrack != nil {
			ev.OnRemoteTrack(domain.TrackInfo{
				Kind:  track.Kind().String(),
				Codec: codec.MimeType,
			})
		}
	})

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			log.Printf("[media] ICE gathering complete")
			return
		}
		if s.released.Load() {
			return
		}
		j := c.ToJSON()
		if ev.OnLocalCandidate != nil {
			ev.OnLocalCandidate(domain.CandidatePayload{
				Candidate: domain.ICECandidate{
					Candidate:     j.Candidate,
					SDPMid:        j.SDPMid,
					SDPMLineIndex: j.SDPMLineIndex,
				},
			})
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Printf("[media] peer connection state: %s", state.String())
		if s.released.Load() {
			return
		}
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateDisconnected {
			s.failOnce.Do(func() {
				if ev.OnDisconnected != nil {
					ev.OnDisconnected()
				}
			})
		}
	})

	return nil
}

// CreateOffer creates an SDP offer, sets it as the local description, and
// returns it transport-encoded.
func (s *Session) CreateOffer() (domain.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil {
		return domain.SessionDescription{}, fmt.Errorf("no peer connection")
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	log.Printf("[media] local SDP offer set")
	return domain.EncodeDescription(domain.SessionDescription{Type: "offer", SDP: offer.SDP}), nil
}

// CreateAnswer creates an SDP answer, sets it as the local description, and
// returns it transport-encoded.
func (s *Session) CreateAnswer() (domain.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil {
		return domain.SessionDescription{}, fmt.Errorf("no peer connection")
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	log.Printf("[media] local SDP answer set")
	return domain.EncodeDescription(domain.SessionDescription{Type: "answer", SDP: answer.SDP}), nil
}

// ApplyRemoteDescription decodes and sets the remote description, then drains
// the pending candidate queue in arrival order.
func (s *Session) ApplyRemoteDescription(d domain.SessionDescription) error {
	decoded, err := domain.DecodeDescription(d)
	if err != nil {
		return err
	}

	var sdpType pion.SDPType
	switch decoded.Type {
	case "offer":
		sdpType = pion.SDPTypeOffer
	case "answer":
		sdpType = pion.SDPTypeAnswer
	default:
		return fmt.Errorf("unexpected description type %q", decoded.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil {
		return fmt.Errorf("no peer connection")
	}

	if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: decoded.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remoteSet = true
	log.Printf("[media] remote SDP %s set, draining %d pending candidates", decoded.Type, s.pending.len())

	s.pending.drain(s.applyCandidate)
	return nil
}

// QueueOrApplyCandidate applies the candidate immediately when the remote
// description is set, otherwise enqueues it. Individual apply failures are
// logged and skipped.
func (s *Session) QueueOrApplyCandidate(c domain.CandidatePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil || !s.remoteSet {
		s.pending.add(c)
		return
	}
	if err := s.applyCandidate(c); err != nil {
		log.Printf("[media] apply candidate: %v", err)
	}
}

func (s *Session) applyCandidate(c domain.CandidatePayload) error {
	init := pion.ICECandidateInit{
		Candidate:     c.Candidate.Candidate,
		SDPMid:        c.Candidate.SDPMid,
		SDPMLineIndex: c.Candidate.SDPMLineIndex,
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// HasLocalOffer reports whether the connection is in the offer-sent
// negotiation state. The state machine uses this to drop stale answers.
func (s *Session) HasLocalOffer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc != nil && s.pc.SignalingState() == pion.SignalingStateHaveLocalOffer
}

// SetAudioEnabled switches microphone transmission on or off. Returns false
// (no-op) when no audio track is attached to the connection.
func (s *Session) SetAudioEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.setTracksEnabled("audio", enabled) {
		return false
	}
	s.audioOn = enabled
	log.Printf("[media] audio enabled=%v", enabled)
	return true
}

// SetVideoEnabled switches camera transmission on or off. Returns false
// (no-op) when no video track is attached to the connection.
func (s *Session) SetVideoEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.setTracksEnabled("video", enabled) {
		return false
	}
	s.videoOn = enabled
	log.Printf("[media] video enabled=%v", enabled)
	return true
}

// setTracksEnabled swaps every sender of one kind between its capture track
// and nil. A nil track keeps the negotiated transceiver alive while nothing is
// transmitted, so re-enabling needs no renegotiation. Caller holds s.mu.
func (s *Session) setTracksEnabled(kind string, enabled bool) bool {
	found := false
	for _, ts := range s.senders {
		if ts.kind != kind {
			continue
		}
		found = true
		next := ts.track
		if !enabled {
			next = nil
		}
		if err := ts.sender.ReplaceTrack(next); err != nil {
			log.Printf("[media] replace %s track: %v", kind, err)
		}
	}
	return found
}

// LocalTracks describes the captured local tracks for the presentation layer.
func (s *Session) LocalTracks() []domain.TrackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	var infos []domain.TrackInfo
	for _, t := range s.stream.GetTracks() {
		infos = append(infos, domain.TrackInfo{Kind: t.Kind().String()})
	}
	return infos
}

// Release stops all local tracks, closes the connection, and clears the
// pending queue. Idempotent and safe when no connection exists; the released
// flag also silences any in-flight callbacks.
func (s *Session) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		for _, t := range s.stream.GetTracks() {
			t.Close()
		}
		s.stream = nil
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			log.Printf("[media] close peer connection: %v", err)
		}
		s.pc = nil
	}
	s.senders = nil
	s.pending.clear()
	s.remoteSet = false
	log.Printf("[media] session released")
}

// drainTrack keeps reading a remote track so RTCP feedback continues to flow.
// The system never consumes decoded media.
func drainTrack(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
