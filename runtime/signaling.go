package runtime

import (
	"encoding/json"
	"fmt"
	"huddle/domain/envelope"
	"huddle/errors"
	"strings"

	"github.com/pion/webrtc/v4"
)

// peerStates indexes pion's peer connection states by their wire name.
var peerStates = func() map[string]webrtc.PeerConnectionState {
	states := []webrtc.PeerConnectionState{
		webrtc.PeerConnectionStateNew,
		webrtc.PeerConnectionStateConnecting,
		webrtc.PeerConnectionStateConnected,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
	}
	res := make(map[string]webrtc.PeerConnectionState, len(states))
	for _, s := range states {
		res[s.String()] = s
	}
	return res
}()

// parsePeerState maps a media_state report onto a pion peer connection state.
func parsePeerState(raw string) (webrtc.PeerConnectionState, error) {
	state, ok := peerStates[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return webrtc.PeerConnectionStateUnknown, fmt.Errorf("%w: unknown media state %q", errors.ErrInvalidEnvelope, raw)
	}
	return state, nil
}

// mediaLost reports whether the peers can no longer exchange media.
func mediaLost(state webrtc.PeerConnectionState) bool {
	return state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected
}

// checkDescriptor makes sure a negotiation blob has the shape announced by kind.
// The SDP body and candidate line are opaque and never inspected.
func checkDescriptor(kind envelope.Type, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: %s without descriptor", errors.ErrInvalidEnvelope, kind)
	}
	switch kind {
	case envelope.WebRTCOffer, envelope.CallInitiate:
		return checkSessionDescription(raw, webrtc.SDPTypeOffer)
	case envelope.WebRTCAnswer, envelope.CallAnswer:
		return checkSessionDescription(raw, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer)
	case envelope.WebRTCCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &candidate); err != nil {
			return fmt.Errorf("%w: candidate: %v", errors.ErrInvalidEnvelope, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s is not a negotiation envelope", errors.ErrUnknownEnvelope, kind)
	}
}

func checkSessionDescription(raw json.RawMessage, allowed ...webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: session description: %v", errors.ErrInvalidEnvelope, err)
	}
	for _, t := range allowed {
		if desc.Type == t {
			return nil
		}
	}
	return fmt.Errorf("%w: unexpected sdp type %q", errors.ErrInvalidEnvelope, desc.Type.String())
}
