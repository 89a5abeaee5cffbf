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
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/1ureka/facelink/internal/util"
)

// Ogg pages from common Opus encoders hold 20 ms of audio. It is also the
// delay before the first page and after pages without a usable granule.
const oggPageDuration = 20 * time.Millisecond

// Opus granule positions always count 48 kHz samples.
const opusClockRate = 48000

type audioSource struct {
	data       []byte
	local      *webrtc.TrackLocalStaticSample
	channels   uint8
	sampleRate uint32
}

func newAudioSource(data []byte, streamID string) (*audioSource, error) {
	_, header, err := oggreader.NewWith(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}

	return &audioSource{
		data:       data,
		local:      track,
		channels:   header.Channels,
		sampleRate: header.SampleRate,
	}, nil
}

func (a *audioSource) track() webrtc.TrackLocal { return a.local }

func (a *audioSource) describe() string {
	return fmt.Sprintf("microphone %s %d ch (source %d Hz)", webrtc.MimeTypeOpus, a.channels, a.sampleRate)
}

// pageDuration converts the granule advance of a page into playback time.
func pageDuration(granule, last uint64) time.Duration {
	if granule <= last {
		return oggPageDuration
	}
	samples := granule - last
	return time.Duration(samples) * time.Second / opusClockRate
}

func (a *audioSource) run(ctx context.Context, stats *util.MediaStats) {
	log := util.Scope("microphone")

	reader, _, err := oggreader.NewWith(bytes.NewReader(a.data))
	if err != nil {
		log.Errorf("open: %v", err)
		return
	}

	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			log.Debugf("looping")
			if reader, _, err = oggreader.NewWith(bytes.NewReader(a.data)); err != nil {
				log.Errorf("reopen: %v", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			log.Errorf("read page: %v", err)
			return
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}

		d := pageDuration(header.GranulePosition, lastGranule)
		lastGranule = header.GranulePosition

		// The next page goes out once this one has played.
		ticker.Reset(d)

		if err := a.local.WriteSample(media.Sample{Data: page, Duration: d}); err != nil {
			log.Warnf("write sample: %v", err)
			continue
		}
		if stats != nil {
			stats.AddSample(len(page))
		}
	}
}
