package rtc

import "github.com/pion/webrtc/v4"

// addRecvOnlyTransceivers adds recvonly transceivers for video and audio
// so CreateOffer/CreateAnswer still produces valid m-lines with ICE
// credentials when no local capture is available. This is the degraded
// receive-only mode: the call proceeds without local tracks.
func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Warnf("add video transceiver: %v", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Warnf("add audio transceiver: %v", err)
	}
}
