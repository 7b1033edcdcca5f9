//go:build linux

package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// newMediaPeerConnection creates a PeerConnection with VP8+Opus codecs
// and attempts to capture local camera/mic via pion/mediadevices (V4L2 +
// malgo). Capture is best-effort: video+audio first, then video-only,
// then audio-only, and finally receive-only transceivers so the call can
// still receive remote media with no local devices at all. The returned
// stop func releases the captured tracks and may be nil.
func newMediaPeerConnection(config webrtc.Configuration) (*webrtc.PeerConnection, func(), error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

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

	// GetUserMedia fails as a unit if either requested track cannot be
	// opened, so a missing microphone must not block the camera and
	// vice versa.
	type attempt struct {
		video bool
		audio bool
		label string
	}
	for _, a := range []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Raw formats only: MJPEG camera nodes can emit malformed
				// frames that poison the VP8 encoder.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Debugf("media capture (%s): %v", a.label, err)
			continue
		}

		tracks := stream.GetTracks()
		for _, track := range tracks {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Debugf("local track ended: %v", err)
				}
			})
			if _, err := pc.AddTrack(track); err != nil {
				log.Warnf("add local track: %v", err)
			}
		}

		log.Infof("local media captured (%s), %d tracks", a.label, len(tracks))
		stop := func() {
			for _, t := range tracks {
				t.Close()
			}
		}
		return pc, stop, nil
	}

	log.Infof("no local capture available, proceeding receive-only")
	addRecvOnlyTransceivers(pc)
	return pc, nil, nil
}
