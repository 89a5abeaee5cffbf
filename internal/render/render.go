// Package render consumes media streams: the local preview and the remote
// tracks that arrive once a session is up.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/1ureka/facelink/internal/util"
)

// Viewport names where a stream is shown.
const (
	ViewportLocal  = "local"
	ViewportRemote = "remote"
)

// TrackReader is a remote track. *webrtc.TrackRemote satisfies it.
type TrackReader interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Previewable is a local stream that can describe itself.
type Previewable interface {
	ID() string
	Describe() []string
}

// Sink shows streams. Render is fire-and-forget: it returns at once and
// consumes the track until it ends.
type Sink interface {
	Preview(local Previewable)
	Render(viewport string, track TrackReader)
	Wait()
}

// rtpWriter is implemented by ivfwriter and oggwriter.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// ---------------------------------------------------------------------------
// Shared pump
// ---------------------------------------------------------------------------

type pump struct {
	stats *util.MediaStats
	log   util.Scoped
	wg    sync.WaitGroup
}

func (p *pump) Preview(local Previewable) {
	lines := local.Describe()
	if len(lines) == 0 {
		p.log.Infof("[%s] %s: no tracks", ViewportLocal, local.ID())
		return
	}
	for _, line := range lines {
		p.log.Infof("[%s] %s", ViewportLocal, line)
	}
}

func (p *pump) Wait() { p.wg.Wait() }

// start reads track until it ends, handing each packet to w (may be nil).
func (p *pump) start(viewport string, track TrackReader, w rtpWriter, dest string) {
	if p.stats != nil {
		p.stats.AddRemoteTrack()
	}
	if dest != "" {
		p.log.Infof("[%s] %s %s → %s", viewport, track.Kind(), track.Codec().MimeType, dest)
	} else {
		p.log.Infof("[%s] %s %s (stream %s)", viewport, track.Kind(), track.Codec().MimeType, track.StreamID())
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if rec := w; rec != nil {
			defer func() {
				if err := rec.Close(); err != nil {
					p.log.Warnf("close %s: %v", dest, err)
				}
			}()
		}

		var packets int
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					p.log.Debugf("[%s] %s track read: %v", viewport, track.Kind(), err)
				}
				p.log.Infof("[%s] %s track ended after %d packets", viewport, track.Kind(), packets)
				return
			}
			packets++
			if p.stats != nil {
				p.stats.AddPacket(len(pkt.Payload))
			}
			if w == nil {
				continue
			}
			if err := w.WriteRTP(pkt); err != nil {
				p.log.Warnf("write %s: %v", dest, err)
				w = nil
			}
		}
	}()
}

// ---------------------------------------------------------------------------
// LogSink
// ---------------------------------------------------------------------------

// LogSink only logs and counts what arrives.
type LogSink struct {
	pump
}

func NewLogSink(stats *util.MediaStats) *LogSink {
	return &LogSink{pump{stats: stats, log: util.Scope("render")}}
}

func (s *LogSink) Render(viewport string, track TrackReader) {
	s.start(viewport, track, nil, "")
}

// ---------------------------------------------------------------------------
// DiskSink
// ---------------------------------------------------------------------------

// DiskSink records VP8 video to IVF and Opus audio to Ogg under a directory.
// Other codecs are drained and counted only. File names carry the start
// time, so a later call never overwrites an earlier recording.
type DiskSink struct {
	pump
	dir string
	now func() time.Time
}

func NewDiskSink(dir string, stats *util.MediaStats) (*DiskSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DiskSink{pump: pump{stats: stats, log: util.Scope("render")}, dir: dir, now: time.Now}, nil
}

func (s *DiskSink) Render(viewport string, track TrackReader) {
	w, dest, err := s.open(viewport, track)
	if err != nil {
		s.log.Warnf("[%s] cannot record %s track: %v", viewport, track.Kind(), err)
	}
	s.start(viewport, track, w, dest)
}

func (s *DiskSink) open(viewport string, track TrackReader) (rtpWriter, string, error) {
	codec := track.Codec()
	base := filepath.Join(s.dir, fmt.Sprintf("%s-%s-%s-%s",
		viewport, track.Kind(), sanitize(track.ID()), s.now().Format("20060102-150405")))

	switch {
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		dest := freeName(base, ".ivf")
		w, err := ivfwriter.New(dest)
		if err != nil {
			return nil, "", err
		}
		return w, dest, nil
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		dest := freeName(base, ".ogg")
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		rate := codec.ClockRate
		if rate == 0 {
			rate = 48000
		}
		w, err := oggwriter.New(dest, rate, channels)
		if err != nil {
			return nil, "", err
		}
		return w, dest, nil
	default:
		return nil, "", fmt.Errorf("no recorder for %s", codec.MimeType)
	}
}

// freeName returns base+ext, or base-N+ext for the first N not yet taken.
func freeName(base, ext string) string {
	name := base + ext
	for n := 2; ; n++ {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
}

// sanitize keeps track IDs usable as file names.
func sanitize(id string) string {
	if id == "" {
		return "track"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
