package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter.
var Stats = &stats{}

type stats struct {
	BytesSent    atomic.Int64 // instruction bytes written to the tunnel
	BytesRecv    atomic.Int64 // instruction bytes read from the tunnel
	ClipboardIn  atomic.Int64 // clipboard payloads assembled from the remote side
	ClipboardOut atomic.Int64 // clipboard payloads sent to the remote side
	StateChanges atomic.Int64 // application state transitions
}

func (s *stats) AddSent(n int)    { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)    { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddClipboardIn()  { s.ClipboardIn.Add(1) }
func (s *stats) AddClipboardOut() { s.ClipboardOut.Add(1) }
func (s *stats) AddStateChange()  { s.StateChanges.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs tunnel statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevIn, prevOut, prevStates int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				clipIn := Stats.ClipboardIn.Load()
				clipOut := Stats.ClipboardOut.Load()
				changes := Stats.StateChanges.Load()

				upS := float64(sent-prevSent) / 10.0
				downS := float64(recv-prevRecv) / 10.0
				inC := clipIn - prevIn
				outC := clipOut - prevOut
				stC := changes - prevStates

				if inC > 0 || outC > 0 || stC > 0 || upS > 10 || downS > 10 {
					pterm.DefaultLogger.Info(formatStats(upS, downS, inC, outC, stC))
				}

				prevSent = sent
				prevRecv = recv
				prevIn = clipIn
				prevOut = clipOut
				prevStates = changes

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(upS, downS float64, inC, outC, states int64) string {
	return fmt.Sprintf("Up: %s/s | Down: %s/s | Clipboard: %2d↓ %2d↑ | States: %2d",
		formatBytes(upS),
		formatBytes(downS),
		inC,
		outC,
		states,
	)
}
