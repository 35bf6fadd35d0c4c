package comm

import "io"

// MinMessageLen is channel + at least one payload byte + checksum.
const MinMessageLen = 3

// Message is a decoded frame.
type Message struct {
	Channel Channel
	Payload []byte
}

// Bytes returns the delimited wire frame of the message, using cs for the
// checksum.
func (m *Message) Bytes(cs *Checksum) []byte {
	raw := make([]byte, 0, len(m.Payload)+2)
	raw = append(raw, byte(m.Channel))
	raw = append(raw, m.Payload...)
	raw = append(raw, cs.Sum(raw))
	return AppendFrame(make([]byte, 0, EncodedFrameLen(len(raw))+2), raw)
}

// WriteFrame writes the wire frame in a single Write call.
func (m *Message) WriteFrame(w io.Writer, cs *Checksum) (int, error) {
	frame := m.Bytes(cs)
	n, err := w.Write(frame)
	if err == nil && n < len(frame) {
		err = ErrShortWrite
	}
	return n, err
}

// ParseMessage validates a COBS decoded frame and splits it into a
// Message. Payload aliases raw.
func ParseMessage(cs *Checksum, raw []byte) (*Message, error) {
	if len(raw) < MinMessageLen {
		return nil, ErrFrameTooShort
	}
	n := len(raw) - 1
	if sum := cs.Sum(raw[:n]); sum != raw[n] {
		return nil, &ChecksumError{Expected: sum, Actual: raw[n]}
	}
	return &Message{Channel: Channel(raw[0]), Payload: raw[1:n]}, nil
}
