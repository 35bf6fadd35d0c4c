package comm

// Delimiter terminates frames on the wire.
const Delimiter byte = 0x00

// maxRun is the largest run code, it carries 254 data bytes and no
// implied zero.
const maxRun = 0xff

// EncodedFrameLen returns the length of EncodeFrame output for n bytes.
func EncodedFrameLen(n int) int {
	return n + n/254 + 1
}

// EncodeFrame encodes src with COBS. The result never contains Delimiter.
func EncodeFrame(src []byte) []byte {
	return appendCOBS(make([]byte, 0, EncodedFrameLen(len(src))), src)
}

// AppendFrame appends the delimited COBS encoding of src to dst.
func AppendFrame(dst, src []byte) []byte {
	dst = append(dst, Delimiter)
	dst = appendCOBS(dst, src)
	return append(dst, Delimiter)
}

func appendCOBS(dst, src []byte) []byte {
	codeAt := len(dst)
	dst = append(dst, 0)
	code := byte(1)
	for _, b := range src {
		if b == 0 {
			dst[codeAt], code = code, 1
			codeAt = len(dst)
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, b)
		if code++; code == maxRun {
			dst[codeAt], code = code, 1
			codeAt = len(dst)
			dst = append(dst, 0)
		}
	}
	dst[codeAt] = code
	return dst
}

// DecodeFrame reverses EncodeFrame. src must not include delimiters.
// It returns ErrInvalidFrame and no data if a run code is zero or a run
// extends past the end of src.
func DecodeFrame(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		code := int(src[i])
		if code == 0 || i+code > len(src) {
			return nil, ErrInvalidFrame
		}
		out = append(out, src[i+1:i+code]...)
		i += code
		if code != maxRun && i < len(src) {
			out = append(out, 0)
		}
	}
	return out, nil
}
