package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Media counters
// ──────────────────────────────────────────────────────────────────────────────

// MediaStats counts media flowing through one call. The capture side adds
// samples it writes to local tracks; the render side adds RTP packets it reads
// from remote tracks.
type MediaStats struct {
	SamplesSent  atomic.Int64 // samples written to local tracks
	BytesSent    atomic.Int64 // sample payload bytes written to local tracks
	PacketsRecv  atomic.Int64 // RTP packets read from remote tracks
	BytesRecv    atomic.Int64 // RTP payload bytes read from remote tracks
	RemoteTracks atomic.Int64 // remote tracks that have arrived
}

func (s *MediaStats) AddSample(n int) {
	s.SamplesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *MediaStats) AddPacket(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *MediaStats) AddRemoteTrack() { s.RemoteTracks.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs the call's media rates
// every interval. Quiet intervals are not logged. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, s *MediaStats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevPkts int64
		for {
			select {
			case <-ticker.C:
				sent := s.BytesSent.Load()
				recv := s.BytesRecv.Load()
				pkts := s.PacketsRecv.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				pktS := float64(pkts-prevPkts) / secs

				if outS > 0 || inS > 0 {
					pterm.DefaultLogger.Info(formatStats(outS, inS, pktS, s.RemoteTracks.Load()))
				}

				prevSent = sent
				prevRecv = recv
				prevPkts = pkts

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a fixed-width (8 chars) string,
// e.g. "99.0   B", " 1.5 KiB", "98.9 GiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// "100.0 KiB" would be 9 chars
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders one reporter line.
func formatStats(outS, inS, pktS float64, tracks int64) string {
	return fmt.Sprintf("Media out: %s/s | in: %s/s (%.0f pkt/s) | remote tracks: %d",
		formatBytes(outS),
		formatBytes(inS),
		pktS,
		tracks,
	)
}
