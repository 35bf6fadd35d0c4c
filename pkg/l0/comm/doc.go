// Package comm provides the L0 link between the bridge firmware and the
// host.
package comm

// The link multiplexes logical channels over a single byte stream
// (typically a serial port). Each message is
//
//	0x00 | COBS(channel ++ payload ++ crc8) | 0x00
//
// where payload is a msgpack encoded Document (see package doc) and crc8
// is computed over channel ++ payload. COBS guarantees 0x00 only appears as
// the frame delimiter, so a receiver re-synchronizes on the next delimiter
// after any corruption.
//
// Incoming bytes are pushed by a Receiver (the producer) into a
// single-producer/single-consumer RingBuffer and drained by a Router
// (the consumer), which reassembles frames, validates them and dispatches
// the decoded Document to the Handler subscribed on the channel.
