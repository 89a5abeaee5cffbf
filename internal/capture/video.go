package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"

	"github.com/1ureka/facelink/internal/config"
	"github.com/1ureka/facelink/internal/util"
)

var fourccMime = map[string]string{
	"VP80": webrtc.MimeTypeVP8,
	"VP90": webrtc.MimeTypeVP9,
	"AV01": webrtc.MimeTypeAV1,
}

type videoSource struct {
	data     []byte
	local    *webrtc.TrackLocalStaticSample
	mime     string
	width    uint16
	height   uint16
	fps      int
	interval time.Duration
}

func newVideoSource(data []byte, streamID string, c config.Constraints) (*videoSource, error) {
	_, header, err := ivfreader.NewWith(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	mime, ok := fourccMime[header.FourCC]
	if !ok {
		return nil, fmt.Errorf("unsupported codec %q", header.FourCC)
	}

	fps := frameRate(header.TimebaseDenominator, header.TimebaseNumerator, c)

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		return nil, err
	}

	return &videoSource{
		data:     data,
		local:    track,
		mime:     mime,
		width:    header.Width,
		height:   header.Height,
		fps:      fps,
		interval: time.Second / time.Duration(fps),
	}, nil
}

// frameRate derives frames per second from an IVF timebase (rate/scale) and
// clamps it to the constraints. A missing timebase means the maximum.
func frameRate(rate, scale uint32, c config.Constraints) int {
	if rate == 0 || scale == 0 {
		return c.MaxFrameRate
	}
	fps := int(rate / scale)
	return max(c.MinFrameRate, min(fps, c.MaxFrameRate))
}

func (v *videoSource) track() webrtc.TrackLocal { return v.local }

func (v *videoSource) describe() string {
	return fmt.Sprintf("camera %s %dx%d @ %d fps", v.mime, v.width, v.height, v.fps)
}

func (v *videoSource) run(ctx context.Context, stats *util.MediaStats) {
	log := util.Scope("camera")

	reader, _, err := ivfreader.NewWith(bytes.NewReader(v.data))
	if err != nil {
		log.Errorf("open: %v", err)
		return
	}

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			log.Debugf("looping")
			if reader, _, err = ivfreader.NewWith(bytes.NewReader(v.data)); err != nil {
				log.Errorf("reopen: %v", err)
				return
			}
			continue
		}
		if err != nil {
			log.Errorf("read frame: %v", err)
			return
		}

		if err := v.local.WriteSample(media.Sample{Data: frame, Duration: v.interval}); err != nil {
			log.Warnf("write sample: %v", err)
			continue
		}
		if stats != nil {
			stats.AddSample(len(frame))
		}
	}
}
