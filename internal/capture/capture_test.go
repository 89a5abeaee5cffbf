package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/facelink/internal/config"
	"github.com/1ureka/facelink/internal/util"
)

// buildIVF returns an IVF file with the given timebase and n tiny frames.
func buildIVF(fourcc string, rate, scale uint32, n int) []byte {
	var buf bytes.Buffer
	header := make([]byte, 32)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 320)
	binary.LittleEndian.PutUint16(header[14:], 240)
	binary.LittleEndian.PutUint32(header[16:], rate)
	binary.LittleEndian.PutUint32(header[20:], scale)
	binary.LittleEndian.PutUint32(header[24:], uint32(n))
	buf.Write(header)

	for i := 0; i < n; i++ {
		frame := []byte{0x10, 0x02, 0x00, byte(i)}
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf.Write(fh)
		buf.Write(frame)
	}
	return buf.Bytes()
}

// buildOgg writes an Ogg/Opus file with n pages of 20 ms each.
func buildOgg(t *testing.T, n int) []byte {
	t.Helper()
	return buildOggStep(t, n, 960)
}

// buildOggStep writes n pages whose granule advances by step samples.
func buildOggStep(t *testing.T, n int, step uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i) * step,
			},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestAcquireNothingConfigured(t *testing.T) {
	_, err := Acquire(config.DefaultConstraints, Sources{})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquireAudioDisabledByConstraints(t *testing.T) {
	ogg := writeFile(t, "mic.ogg", buildOgg(t, 3))
	c := config.DefaultConstraints
	c.Audio = false

	_, err := Acquire(c, Sources{Audio: ogg})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquireMissingFile(t *testing.T) {
	_, err := Acquire(config.DefaultConstraints, Sources{Video: filepath.Join(t.TempDir(), "nope.ivf")})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquireRejectsGarbage(t *testing.T) {
	path := writeFile(t, "cam.ivf", []byte("this is not a video"))
	_, err := Acquire(config.DefaultConstraints, Sources{Video: path})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquireRejectsUnknownCodec(t *testing.T) {
	path := writeFile(t, "cam.ivf", buildIVF("H264", 30, 1, 1))
	_, err := Acquire(config.DefaultConstraints, Sources{Video: path})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "H264")
}

func TestAcquireCameraAndMicrophone(t *testing.T) {
	cam := writeFile(t, "cam.ivf", buildIVF("VP80", 30, 1, 5))
	mic := writeFile(t, "mic.ogg", buildOgg(t, 5))

	s, err := Acquire(config.DefaultConstraints, Sources{Video: cam, Audio: mic})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID())
	require.Len(t, s.Tracks(), 2)
	assert.Equal(t, "video", s.Tracks()[0].ID())
	assert.Equal(t, "audio", s.Tracks()[1].ID())
	assert.Equal(t, s.ID(), s.Tracks()[0].StreamID())

	desc := s.Describe()
	require.Len(t, desc, 2)
	assert.Equal(t, "camera video/VP8 320x240 @ 15 fps", desc[0])
	assert.Contains(t, desc[1], "2 ch")
}

func TestStreamPushesSamplesAndLoops(t *testing.T) {
	cam := writeFile(t, "cam.ivf", buildIVF("VP80", 15, 1, 2))
	mic := writeFile(t, "mic.ogg", buildOgg(t, 2))

	s, err := Acquire(config.DefaultConstraints, Sources{Video: cam, Audio: mic})
	require.NoError(t, err)

	var stats util.MediaStats
	s.Start(context.Background(), &stats)
	defer s.Stop()

	// Each file holds two samples, so the count only keeps growing if
	// the sources loop.
	require.Eventually(t, func() bool {
		return stats.SamplesSent.Load() > 6
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStopIsFinal(t *testing.T) {
	cam := writeFile(t, "cam.ivf", buildIVF("VP80", 15, 1, 2))
	s, err := Acquire(config.DefaultConstraints, Sources{Video: cam})
	require.NoError(t, err)

	var stats util.MediaStats
	s.Start(context.Background(), &stats)
	s.Stop()
	n := stats.SamplesSent.Load()

	s.Start(context.Background(), &stats)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, n, stats.SamplesSent.Load())
}

func TestFrameRateClamp(t *testing.T) {
	c := config.DefaultConstraints
	tests := []struct {
		rate, scale uint32
		want        int
	}{
		{30, 1, 15},
		{12, 1, 12},
		{5, 1, 10},
		{30000, 1001, 15},
		{0, 1, 15},
		{25, 0, 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, frameRate(tt.rate, tt.scale, c), "%d/%d", tt.rate, tt.scale)
	}
}

func TestPageDuration(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, pageDuration(960, 0))
	assert.Equal(t, 60*time.Millisecond, pageDuration(3840, 960))
	assert.Equal(t, oggPageDuration, pageDuration(0, 0))
	assert.Equal(t, oggPageDuration, pageDuration(100, 960))
}

func TestAudioPacedByGranule(t *testing.T) {
	// 100 ms pages: a fixed 20 ms tick would push five times too many.
	mic := writeFile(t, "mic.ogg", buildOggStep(t, 5, 4800))
	s, err := Acquire(config.DefaultConstraints, Sources{Audio: mic})
	require.NoError(t, err)

	var stats util.MediaStats
	s.Start(context.Background(), &stats)
	defer s.Stop()

	time.Sleep(350 * time.Millisecond)
	n := stats.SamplesSent.Load()
	assert.GreaterOrEqual(t, n, int64(2))
	assert.LessOrEqual(t, n, int64(8))
}
