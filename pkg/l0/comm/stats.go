package comm

import (
	"sync/atomic"

	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// Stats is a snapshot of Router counters.
type Stats struct {
	Received       uint64 `json:"received" yaml:"received"`
	Dispatched     uint64 `json:"dispatched" yaml:"dispatched"`
	Unhandled      uint64 `json:"unhandled" yaml:"unhandled"`
	FramingErrors  uint64 `json:"framing_errors" yaml:"framing_errors"`
	ChecksumErrors uint64 `json:"checksum_errors" yaml:"checksum_errors"`
	ShortFrames    uint64 `json:"short_frames" yaml:"short_frames"`
	DecodeErrors   uint64 `json:"decode_errors" yaml:"decode_errors"`
	Oversized      uint64 `json:"oversized" yaml:"oversized"`
	Overflows      uint64 `json:"overflows" yaml:"overflows"`
	Published      uint64 `json:"published" yaml:"published"`
	ShortWrites    uint64 `json:"short_writes" yaml:"short_writes"`
	WriteErrors    uint64 `json:"write_errors" yaml:"write_errors"`
}

// Dropped sums inbound frames or bytes discarded for any reason.
func (s Stats) Dropped() uint64 {
	return s.FramingErrors + s.ChecksumErrors + s.ShortFrames + s.DecodeErrors + s.Oversized + s.Overflows
}

// Document converts the snapshot for publishing.
func (s Stats) Document() *doc.Document {
	return doc.New().
		Set("received", doc.Uint(s.Received)).
		Set("dispatched", doc.Uint(s.Dispatched)).
		Set("unhandled", doc.Uint(s.Unhandled)).
		Set("framing_errors", doc.Uint(s.FramingErrors)).
		Set("checksum_errors", doc.Uint(s.ChecksumErrors)).
		Set("short_frames", doc.Uint(s.ShortFrames)).
		Set("decode_errors", doc.Uint(s.DecodeErrors)).
		Set("oversized", doc.Uint(s.Oversized)).
		Set("overflows", doc.Uint(s.Overflows)).
		Set("published", doc.Uint(s.Published)).
		Set("short_writes", doc.Uint(s.ShortWrites)).
		Set("write_errors", doc.Uint(s.WriteErrors))
}

type counters struct {
	received       atomic.Uint64
	dispatched     atomic.Uint64
	unhandled      atomic.Uint64
	framingErrors  atomic.Uint64
	checksumErrors atomic.Uint64
	shortFrames    atomic.Uint64
	decodeErrors   atomic.Uint64
	oversized      atomic.Uint64
	published      atomic.Uint64
	shortWrites    atomic.Uint64
	writeErrors    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:       c.received.Load(),
		Dispatched:     c.dispatched.Load(),
		Unhandled:      c.unhandled.Load(),
		FramingErrors:  c.framingErrors.Load(),
		ChecksumErrors: c.checksumErrors.Load(),
		ShortFrames:    c.shortFrames.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		Oversized:      c.oversized.Load(),
		Published:      c.published.Load(),
		ShortWrites:    c.shortWrites.Load(),
		WriteErrors:    c.writeErrors.Load(),
	}
}
