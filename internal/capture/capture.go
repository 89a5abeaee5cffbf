// Package capture provides the local camera and microphone. Devices are
// backed by media files (IVF video, Ogg/Opus audio) that are paced like a
// live source and loop at EOF.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/facelink/internal/config"
	"github.com/1ureka/facelink/internal/util"
)

// ErrDeviceUnavailable is returned when no usable camera or microphone could
// be opened.
var ErrDeviceUnavailable = errors.New("device unavailable")

// Sources names the files standing in for the camera and microphone.
type Sources struct {
	Video string
	Audio string
}

// source is one paced track.
type source interface {
	track() webrtc.TrackLocal
	describe() string
	run(ctx context.Context, stats *util.MediaStats)
}

// Stream is an acquired local stream. It is owned by the capture side and
// borrowed by at most one session at a time.
type Stream struct {
	id      string
	sources []source

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// Acquire opens the configured devices under c. It fails with
// ErrDeviceUnavailable when nothing is configured or a device cannot be read.
func Acquire(c config.Constraints, src Sources) (*Stream, error) {
	if src.Video == "" && (src.Audio == "" || !c.Audio) {
		return nil, fmt.Errorf("%w: no camera or microphone configured", ErrDeviceUnavailable)
	}

	s := &Stream{id: "facelink-" + uuid.NewString()[:8]}

	if src.Video != "" {
		data, err := readDevice(src.Video)
		if err != nil {
			return nil, err
		}
		v, err := newVideoSource(data, s.id, c)
		if err != nil {
			return nil, fmt.Errorf("%w: camera %s: %v", ErrDeviceUnavailable, src.Video, err)
		}
		s.sources = append(s.sources, v)
	}

	if src.Audio != "" && c.Audio {
		data, err := readDevice(src.Audio)
		if err != nil {
			return nil, err
		}
		a, err := newAudioSource(data, s.id)
		if err != nil {
			return nil, fmt.Errorf("%w: microphone %s: %v", ErrDeviceUnavailable, src.Audio, err)
		}
		s.sources = append(s.sources, a)
	}

	return s, nil
}

func readDevice(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return data, nil
}

// ID implements negotiation.Stream.
func (s *Stream) ID() string { return s.id }

// Tracks implements engine.TrackSource.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	tracks := make([]webrtc.TrackLocal, 0, len(s.sources))
	for _, src := range s.sources {
		tracks = append(tracks, src.track())
	}
	return tracks
}

// Describe returns one human-readable line per track, for local preview.
func (s *Stream) Describe() []string {
	out := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.describe())
	}
	return out
}

// Start begins pushing samples into the tracks. Samples written before a
// peer binds the tracks are dropped, as with a live camera.
func (s *Stream) Start(ctx context.Context, stats *util.MediaStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, src := range s.sources {
		src := src
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			src.run(ctx, stats)
		}()
	}
}

// Stop ends all sources and waits for them to exit.
func (s *Stream) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
