package csv

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf16"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// detectAndWrap peeks the leading bytes of r for a byte-order mark when
// cfg requests auto-detection, strips the BOM, and wraps the remainder in
// a transcoding reader when the detected encoding is not UTF-8. It
// returns the (possibly wrapped) reader and the encoding it settled on.
func detectAndWrap(r io.Reader, want EncodingType) (io.Reader, EncodingType, error) {
	br := bufio.NewReaderSize(r, 4096)

	enc := want
	if want == EncodingAutoDetect {
		enc = EncodingUTF8
		peek, _ := br.Peek(3)
		switch {
		case len(peek) >= 3 && bytesEqual(peek[:3], bomUTF8):
			enc = EncodingUTF8
			br.Discard(3)
		case len(peek) >= 2 && bytesEqual(peek[:2], bomUTF16LE):
			enc = EncodingUTF16LE
			br.Discard(2)
		case len(peek) >= 2 && bytesEqual(peek[:2], bomUTF16BE):
			enc = EncodingUTF16BE
			br.Discard(2)
		}
	}

	switch enc {
	case EncodingUTF16LE, EncodingUTF16BE:
		return newUTF16Reader(br, enc == EncodingUTF16BE), enc, nil
	case EncodingUTF8, EncodingASCII, EncodingAutoDetect:
		return br, enc, nil
	default:
		return nil, enc, fmt.Errorf("unsupported encoding %d", enc)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// utf16Reader transcodes a UTF-16 byte stream into UTF-8 on the fly,
// holding back a trailing odd byte or unpaired high surrogate until the
// next Read so code points are never split across chunk boundaries.
type utf16Reader struct {
	src        io.Reader
	bigEndian  bool
	pending    []byte // leftover raw bytes, always even length except transiently
	out        []byte // decoded UTF-8 bytes not yet returned to the caller
	eof        bool
}

func newUTF16Reader(src io.Reader, bigEndian bool) *utf16Reader {
	return &utf16Reader{src: src, bigEndian: bigEndian}
}

func (u *utf16Reader) Read(p []byte) (int, error) {
	for len(u.out) == 0 {
		if u.eof {
			return 0, io.EOF
		}
		buf := make([]byte, 4096)
		n, err := u.src.Read(buf)
		raw := append(u.pending, buf[:n]...)
		u.pending = nil

		if err != nil {
			u.eof = true
		}

		usable := len(raw) - (len(raw) % 2)
		if !u.eof && usable > 0 {
			// Hold back a final unpaired high surrogate so it decodes
			// together with its low surrogate on the next read.
			lastUnit := decodeUnit(raw[usable-2:usable], u.bigEndian)
			if isHighSurrogate(lastUnit) {
				usable -= 2
			}
		}
		if usable < len(raw) {
			u.pending = append(u.pending, raw[usable:]...)
		}
		raw = raw[:usable]

		if len(raw) > 0 {
			units := make([]uint16, len(raw)/2)
			for i := range units {
				units[i] = decodeUnit(raw[i*2:i*2+2], u.bigEndian)
			}
			runes := utf16.Decode(units)
			u.out = append(u.out, []byte(string(runes))...)
		}
		if u.eof && len(u.out) == 0 {
			return 0, io.EOF
		}
	}

	n := copy(p, u.out)
	u.out = u.out[n:]
	return n, nil
}

func decodeUnit(b []byte, bigEndian bool) uint16 {
	if bigEndian {
		return uint16(b[0])<<8 | uint16(b[1])
	}
	return uint16(b[1])<<8 | uint16(b[0])
}

func isHighSurrogate(u uint16) bool {
	return u >= 0xD800 && u <= 0xDBFF
}
