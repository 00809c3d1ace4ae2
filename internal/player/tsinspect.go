package player

import (
	"github.com/Comcast/gots/v2/packet"
	"github.com/ausocean/av/container/mts"

	"github.com/ausocean/utils/logging"
)

// ptsJumpThreshold bounds how far a PID's PTS may advance between two
// payload-start packets before it's logged as a discontinuity rather than
// ordinary frame spacing — a few seconds of 90kHz clock ticks, well above
// any real frame interval. Grounded on model/mtsmedia.go's PTS-rollover-
// aware duration computation (mts.MaxPTS), which this mirrors for
// detecting an unexpected jump rather than computing a duration.
const ptsJumpThreshold = 5 * mts.PTSFrequency

// tsHealth tracks, per PID, the continuity counter and last-seen PTS
// across forwarded buffers — a lightweight secondary health signal for the
// byte-forwarding inner loop (spec §4.7 step 10), not a correctness gate,
// just an early warning when the encoder is being handed discontinuous or
// non-monotonic MPEG-TS. Grounded on model/mtsmedia.go's combined use of
// github.com/Comcast/gots/v2/packet (PID, continuity counter, adaptation
// field) and github.com/ausocean/av/container/mts (GetPTS, PTS rollover
// via MaxPTS) for its own continuity/duration checks.
type tsHealth struct {
	log     logging.Logger
	seen    map[int]byte
	lastPTS map[int]int64
}

func newTSHealth(log logging.Logger) *tsHealth {
	return &tsHealth{log: log, seen: make(map[int]byte), lastPTS: make(map[int]int64)}
}

// inspect scans buf for complete 188-byte MPEG-TS packets and logs a
// warning on a continuity-counter gap or an out-of-range PTS jump per PID.
// Non-TS buffers (e.g. raw Desktop/Null output) are silently skipped — a
// buffer whose length isn't a multiple of the packet size, or whose first
// byte isn't the 0x47 sync byte, is assumed not to be MPEG-TS at all.
func (h *tsHealth) inspect(buf []byte) {
	if len(buf) == 0 || len(buf)%packet.PacketSize != 0 || buf[0] != 0x47 {
		return
	}

	for i := 0; i+packet.PacketSize <= len(buf); i += packet.PacketSize {
		raw := buf[i : i+packet.PacketSize]
		if raw[0] != 0x47 {
			return // not packet-aligned after all; stop guessing
		}
		arr := packet.Packet(raw)
		pkt := &arr

		pid := pkt.PID()

		if pkt.PayloadUnitStartIndicator() {
			if pts, err := mts.GetPTS(raw); err == nil {
				h.checkPTS(pid, pts)
			}
		}

		afc := pkt.AdaptationFieldControl()
		if afc != packet.PayloadFlag && afc != packet.PayloadAndAdaptationFieldFlag {
			continue // no payload, continuity counter doesn't advance
		}

		cc := byte(pkt.ContinuityCounter() & 0x0f)
		if prev, ok := h.seen[pid]; ok {
			want := (prev + 1) & 0x0f
			if cc != want && h.log != nil {
				h.log.Warning("MPEG-TS continuity counter gap", "pid", pid, "expected", int(want), "got", int(cc))
			}
		}
		h.seen[pid] = cc
	}
}

// checkPTS logs a warning when pid's PTS advances by more than
// ptsJumpThreshold since the last payload-start packet, accounting for the
// 33-bit PTS clock's rollover the same way model/mtsmedia.go does.
func (h *tsHealth) checkPTS(pid int, pts int64) {
	prev, ok := h.lastPTS[pid]
	h.lastPTS[pid] = pts
	if !ok {
		return
	}

	delta := pts - prev
	if delta < 0 {
		delta += mts.MaxPTS
	}
	if delta > ptsJumpThreshold && h.log != nil {
		h.log.Warning("MPEG-TS PTS discontinuity", "pid", pid, "previous_pts", prev, "pts", pts, "delta", delta)
	}
}
