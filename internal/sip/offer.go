package sip

import (
	"github.com/callgate/callgate/internal/config"
	"github.com/callgate/callgate/internal/media"
)

// buildAnswerSDP builds the SDP answer for an accepted INVITE: single audio
// media line offering exactly the negotiated codec, bound to localRTPPort
// and advertising cfg's media IP (the static external IP, else a local
// interface address, per config.Config.MediaIP) in place of the trunk's
// private address.
func buildAnswerSDP(cfg *config.Config, offer *media.SessionDescription, codec media.NegotiatedCodec, localRTPPort int) *media.SessionDescription {
	return media.BuildAnswer(offer, codec, cfg.MediaIP(), localRTPPort)
}
