package id3v2

import (
	"github.com/streamtag/audiometa/internal/breader"
)

// Magic is the 3-byte prefix signature. FooterMagic is the reversed
// signature ("3DI") used when a v2.4 tag carries a footer, or when a
// footer-only tag is located by scanning backward from EOF.
const (
	Magic       = "ID3"
	FooterMagic = "3DI"
)

const headerSize = 10
const footerSize = 10

// header flags
const (
	flagUnsynchronisation = 1 << 7
	flagExtendedHeader    = 1 << 6
	flagExperimental      = 1 << 5
	flagFooterPresent     = 1 << 4
)

// frame format flags (second flags byte, v2.3/v2.4)
const (
	frameGroupingIdentity    = 1 << 6
	frameCompressed          = 1 << 3
	frameEncrypted           = 1 << 2
	frameUnsynchronisation   = 1 << 1
	frameDataLengthIndicator = 1 << 0
)

// Header is a decoded ID3v2 tag header.
type Header struct {
	MajorVersion uint8
	MinorVersion uint8
	Flags        uint8
	Size         uint32 // declared tag-body size, synchsafe-decoded
}

func (h *Header) unsynchronised() bool { return h.Flags&flagUnsynchronisation != 0 }
func (h *Header) extendedHeader() bool { return h.Flags&flagExtendedHeader != 0 }
func (h *Header) footerPresent() bool  { return h.Flags&flagFooterPresent != 0 }

// readHeader reads the 10-byte ID3v2 header at the reader's current
// position. It returns (nil, nil) if the bytes don't look like an ID3v2
// header at all (bad magic, unsupported major version, or minor == 0xFF).
func readHeader(br *breader.Reader) (*Header, error) {
	magic, err := br.Peek(3)
	if err != nil {
		return nil, nil
	}
	if string(magic) != Magic {
		return nil, nil
	}

	raw, err := br.ReadExact(headerSize)
	if err != nil {
		return nil, nil
	}

	h := &Header{
		MajorVersion: raw[3],
		MinorVersion: raw[4],
		Flags:        raw[5],
	}
	if h.MajorVersion < 2 || h.MajorVersion > 4 {
		return nil, nil
	}
	if h.MinorVersion == 0xFF {
		return nil, nil
	}

	size, err := synchsafeFromBytes(raw[6:10])
	if err != nil {
		// InvalidSynchsafe: the tag's own size is unreadable, so we cannot
		// safely know where it ends. Treat this location as not holding a
		// decodable tag rather than guessing a size.
		return nil, nil
	}
	h.Size = size
	return h, nil
}

func synchsafeFromBytes(b []byte) (uint32, error) {
	var n uint32
	for _, c := range b {
		if c&0x80 != 0 {
			return 0, breader.ErrInvalidSynchsafe
		}
		n = n<<7 | uint32(c)
	}
	return n, nil
}

// skipExtendedHeader consumes the extended header immediately following the
// main header, if h.Flags says one is present, and returns how many body
// bytes it occupied so the caller can shrink the frame-loop budget
// accordingly. It does not interpret any extended-header field beyond the
// size needed to skip it, per spec: v2.3's size is exclusive of itself,
// v2.4's is inclusive and synchsafe.
func skipExtendedHeader(br *breader.Reader, h *Header) (uint32, error) {
	if !h.extendedHeader() {
		return 0, nil
	}

	if h.MajorVersion == 2 {
		// ID3v2.2 has no extended header; treat the flag as meaningless.
		return 0, nil
	}

	if h.MajorVersion == 3 {
		raw, err := br.ReadExact(4)
		if err != nil {
			return 0, err
		}
		size := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
		if err := br.Discard(uint64(size)); err != nil {
			return 0, err
		}
		return size + 4, nil
	}

	// v2.4: size is synchsafe and inclusive of the 4 bytes just read.
	raw, err := br.ReadExact(4)
	if err != nil {
		return 0, err
	}
	size, err := synchsafeFromBytes(raw)
	if err != nil {
		return 0, err
	}
	if size < 4 {
		return 4, nil
	}
	if err := br.Discard(uint64(size - 4)); err != nil {
		return 0, err
	}
	return size, nil
}

func validFrameIDByte(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// validFrameID accepts one or more [A-Z0-9] bytes followed by zero or more
// trailing NUL bytes: a v2.3/v2.4 tag carrying a 3-character ID3v2.2-style ID
// padded out to 4 bytes (id3v2.2 compatibility, §4.3.4) presents exactly
// this shape, and must not be rejected as if it were a garbage ID.
func validFrameID(id []byte) bool {
	i := 0
	for i < len(id) && validFrameIDByte(id[i]) {
		i++
	}
	if i == 0 {
		return false
	}
	for _, c := range id[i:] {
		if c != 0x00 {
			return false
		}
	}
	return true
}
