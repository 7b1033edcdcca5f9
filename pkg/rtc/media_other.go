//go:build !linux

package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// newMediaPeerConnection creates a receive-only PeerConnection on
// platforms without pion/mediadevices driver support. The call can
// still receive remote media.
func newMediaPeerConnection(config webrtc.Configuration) (*webrtc.PeerConnection, func(), error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, nil, err
	}

	addRecvOnlyTransceivers(pc)
	log.Infof("peer connection ready (receive-only, no local capture on this platform)")
	return pc, nil, nil
}
