package doc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// MaxDepth limits nesting of maps and arrays accepted by Decode.
const MaxDepth = 32

var (
	// ErrUnsupportedType indicates a msgpack type without a Value kind.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrNotMap indicates the payload is not a map at top level.
	ErrNotMap = errors.New("document is not a map")
	// ErrTooDeep indicates nesting beyond MaxDepth.
	ErrTooDeep = errors.New("document nested too deep")
)

// DecodeError reports where decoding failed.
type DecodeError struct {
	Offset int
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode document at %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodedSize returns the exact length of Encode output.
func (d *Document) EncodedSize() int {
	n := containerHeaderSize(d.Len())
	d.Range(func(key string, v Value) bool {
		n += stringSize(len(key)) + v.encodedSize()
		return true
	})
	return n
}

func (v Value) encodedSize() int {
	switch v.kind {
	case KindBool, KindNil:
		return 1
	case KindInt:
		return intSize(int64(v.bits))
	case KindUint:
		return uintSize(v.bits)
	case KindFloat:
		return 9
	case KindString:
		return stringSize(len(v.str))
	case KindMap:
		return v.m.EncodedSize()
	case KindArray:
		n := containerHeaderSize(len(v.arr))
		for _, item := range v.arr {
			n += item.encodedSize()
		}
		return n
	}
	return 1
}

func uintSize(n uint64) int {
	switch {
	case n <= uint64(msgpcode.PosFixedNumHigh):
		return 1
	case n <= math.MaxUint8:
		return 2
	case n <= math.MaxUint16:
		return 3
	case n <= math.MaxUint32:
		return 5
	}
	return 9
}

func intSize(n int64) int {
	switch {
	case n >= 0:
		return uintSize(uint64(n))
	case n >= -32:
		return 1
	case n >= math.MinInt8:
		return 2
	case n >= math.MinInt16:
		return 3
	case n >= math.MinInt32:
		return 5
	}
	return 9
}

func stringSize(l int) int {
	switch {
	case l < 32:
		return 1 + l
	case l <= math.MaxUint8:
		return 2 + l
	case l <= math.MaxUint16:
		return 3 + l
	}
	return 5 + l
}

func containerHeaderSize(l int) int {
	switch {
	case l < 16:
		return 1
	case l <= math.MaxUint16:
		return 3
	}
	return 5
}

// Encode returns the msgpack encoding of the Document.
func (d *Document) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(d.EncodedSize())
	// Writing to bytes.Buffer never fails.
	encodeMap(msgpack.NewEncoder(&buf), d)
	return buf.Bytes()
}

func encodeMap(enc *msgpack.Encoder, d *Document) error {
	if err := enc.EncodeMapLen(d.Len()); err != nil {
		return err
	}
	var err error
	d.Range(func(key string, v Value) bool {
		if err = enc.EncodeString(key); err == nil {
			err = encodeValue(enc, v)
		}
		return err == nil
	})
	return err
}

func encodeValue(enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindBool:
		return enc.EncodeBool(v.bits != 0)
	case KindInt:
		return enc.EncodeInt(int64(v.bits))
	case KindUint:
		return enc.EncodeUint(v.bits)
	case KindFloat:
		return enc.EncodeFloat64(math.Float64frombits(v.bits))
	case KindString:
		return enc.EncodeString(v.str)
	case KindMap:
		return encodeMap(enc, v.m)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, item := range v.arr {
			if err := encodeValue(enc, item); err != nil {
				return err
			}
		}
		return nil
	}
	return enc.EncodeNil()
}

// Decode parses a msgpack map into a new Document. On error no Document
// is returned.
func Decode(data []byte) (*Document, error) {
	r := bytes.NewReader(data)
	dd := &decoder{r: r, dec: msgpack.NewDecoder(r)}
	d, err := dd.decodeTop()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &DecodeError{Offset: len(data) - r.Len(), Err: err}
	}
	return d, nil
}

type decoder struct {
	r     *bytes.Reader
	dec   *msgpack.Decoder
	depth int
}

// capacity bounds a container length read from the header by what the
// remaining input can hold, each element taking at least minSize bytes.
func (d *decoder) capacity(n, minSize int) (int, error) {
	if n < 0 {
		return 0, ErrUnsupportedType
	}
	if n > d.r.Len()/minSize {
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (d *decoder) decodeTop() (*Document, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if !isMap(c) {
		return nil, ErrNotMap
	}
	return d.decodeMap()
}

func (d *decoder) decodeMap() (*Document, error) {
	if d.depth++; d.depth > MaxDepth {
		return nil, ErrTooDeep
	}
	defer func() { d.depth-- }()
	n, err := d.dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n, err = d.capacity(n, 2); err != nil {
		return nil, err
	}
	doc := &Document{entries: make([]Entry, 0, n)}
	for i := 0; i < n; i++ {
		key, err := d.decodeKey()
		if err != nil {
			return nil, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		doc.Set(key, v)
	}
	return doc, nil
}

// decodeKey accepts string keys and integer keys, the latter stringified.
func (d *decoder) decodeKey() (string, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return "", err
	}
	switch {
	case msgpcode.IsString(c):
		return d.dec.DecodeString()
	case isInteger(c):
		v, err := d.decodeInteger(c)
		if err != nil {
			return "", err
		}
		if v.kind == KindUint {
			return strconv.FormatUint(v.bits, 10), nil
		}
		return strconv.FormatInt(int64(v.bits), 10), nil
	}
	return "", ErrUnsupportedType
}

func (d *decoder) decodeValue() (Value, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return Value{}, err
	}
	switch {
	case c == msgpcode.Nil:
		return Value{}, d.dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		b, err := d.dec.DecodeBool()
		return Bool(b), err
	case isInteger(c):
		return d.decodeInteger(c)
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := d.dec.DecodeFloat64()
		return Float(f), err
	case msgpcode.IsString(c):
		s, err := d.dec.DecodeString()
		return String(s), err
	case isMap(c):
		m, err := d.decodeMap()
		if err != nil {
			return Value{}, err
		}
		return Map(m), nil
	case isArray(c):
		return d.decodeArray()
	}
	return Value{}, ErrUnsupportedType
}

func (d *decoder) decodeArray() (Value, error) {
	if d.depth++; d.depth > MaxDepth {
		return Value{}, ErrTooDeep
	}
	defer func() { d.depth-- }()
	n, err := d.dec.DecodeArrayLen()
	if err != nil {
		return Value{}, err
	}
	if n, err = d.capacity(n, 1); err != nil {
		return Value{}, err
	}
	items := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	return Array(items...), nil
}

// decodeInteger keeps the signed kind unless the value only fits uint64.
func (d *decoder) decodeInteger(c byte) (Value, error) {
	if c == msgpcode.Uint64 {
		n, err := d.dec.DecodeUint64()
		if err != nil {
			return Value{}, err
		}
		if n > math.MaxInt64 {
			return Uint(n), nil
		}
		return Int(int64(n)), nil
	}
	n, err := d.dec.DecodeInt64()
	return Int(n), err
}

func isInteger(c byte) bool {
	return msgpcode.IsFixedNum(c) ||
		(c >= msgpcode.Uint8 && c <= msgpcode.Uint64) ||
		(c >= msgpcode.Int8 && c <= msgpcode.Int64)
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}
