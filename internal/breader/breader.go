// Package breader implements the bounded stream reader shared by every tag
// decoder: a cursor over a seekable byte source that enforces per-tag read
// windows and exposes synchsafe and unsynchronised reads.
//
// A malformed length field can never cause a decoder to read past a tag's
// declared end: every length-prefixed structure pushes a window before
// decoding its body, and every read checks against the window stack.
package breader

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrEndOfStream is returned when a read would cross the current window
// boundary or the end of the underlying stream.
var ErrEndOfStream = errors.New("breader: end of stream")

// ErrInvalidSynchsafe is returned by ReadSynchsafeU32 when a byte has its
// high bit set.
var ErrInvalidSynchsafe = errors.New("breader: invalid synchsafe integer")

type window struct {
	end      uint64 // exclusive, absolute source offset
	unsync   bool
	lastWasFF bool
}

// Reader wraps a seekable byte source with a stack of read windows, each
// bounded by an exclusive end offset. Position tracking always counts source
// bytes, never decoded bytes, so Pos() after reading an unsynchronised window
// equals the true end of the source region.
type Reader struct {
	src     io.ReadSeeker
	pos     uint64
	length  uint64
	windows []window
}

// New wraps src. length is the total size of the stream (the driver
// discovers this once via Seek(0, io.SeekEnd) and passes it through so every
// decoder shares one notion of end-of-file).
func New(src io.ReadSeeker, length uint64) *Reader {
	return &Reader{src: src, length: length}
}

// Len returns the total length of the underlying stream.
func (r *Reader) Len() uint64 { return r.length }

// Pos returns the current absolute source offset.
func (r *Reader) Pos() uint64 { return r.pos }

// SeekTo repositions the cursor to an absolute offset, discarding any
// pushed windows. Used by the driver between independent head/tail probes.
func (r *Reader) SeekTo(pos uint64) error {
	if pos > r.length {
		return ErrEndOfStream
	}
	if _, err := r.src.Seek(int64(pos), io.SeekStart); err != nil {
		return errors.Wrap(err, "breader: seek")
	}
	r.pos = pos
	r.windows = r.windows[:0]
	return nil
}

// top returns the end offset the current read is bounded by: the innermost
// pushed window if any, else the stream length.
func (r *Reader) top() uint64 {
	if len(r.windows) == 0 {
		return r.length
	}
	return r.windows[len(r.windows)-1].end
}

// PushWindow bounds subsequent reads to end (an absolute offset, exclusive).
// unsync marks the window as ID3v2-unsynchronised: a 0x00 byte immediately
// following 0xFF is transparently dropped from decoded output, though
// position tracking still counts it.
func (r *Reader) PushWindow(end uint64, unsync bool) error {
	if end < r.pos || end > r.top() {
		return ErrEndOfStream
	}
	r.windows = append(r.windows, window{end: end, unsync: unsync})
	return nil
}

// PopWindow releases the innermost window. Safe to call even if reads
// stopped short of the window's declared end — the caller is responsible
// for seeking to the window's end first if it wants to resume reading past
// it (WindowEnd reports that offset).
func (r *Reader) PopWindow() {
	if len(r.windows) == 0 {
		return
	}
	r.windows = r.windows[:len(r.windows)-1]
}

// WindowEnd returns the end offset of the innermost pushed window.
func (r *Reader) WindowEnd() uint64 {
	return r.top()
}

// Remaining returns how many source bytes remain before the innermost
// window (or the stream, if no window is pushed) ends.
func (r *Reader) Remaining() uint64 {
	top := r.top()
	if r.pos >= top {
		return 0
	}
	return top - r.pos
}

// readRawByte reads exactly one byte from the underlying source, bounds
// checked against the current window, and advances pos.
func (r *Reader) readRawByte() (byte, error) {
	if r.pos >= r.top() {
		return 0, ErrEndOfStream
	}
	var buf [1]byte
	n, err := io.ReadFull(r.src, buf[:])
	if n == 1 {
		r.pos++
	}
	if err != nil {
		return 0, ErrEndOfStream
	}
	return buf[0], nil
}

// ReadExact reads exactly n logical bytes, applying the innermost window's
// unsynchronisation view if set. It never reads past the window boundary.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("breader: negative read size")
	}
	out := make([]byte, 0, n)

	var w *window
	if len(r.windows) > 0 {
		w = &r.windows[len(r.windows)-1]
	}

	for len(out) < n {
		b, err := r.readRawByte()
		if err != nil {
			return nil, err
		}
		if w != nil && w.unsync {
			if w.lastWasFF && b == 0x00 {
				// Dropped synchronisation byte: consume but don't emit, and
				// don't let it count as a new 0xFF for the next iteration.
				w.lastWasFF = false
				continue
			}
			w.lastWasFF = b == 0xFF
		}
		out = append(out, b)
	}
	return out, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (byte, error) {
	b, err := r.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16BE reads a big-endian 16-bit unsigned integer.
func (r *Reader) ReadU16BE() (uint16, error) {
	b, err := r.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ReadU32BE reads a big-endian 32-bit unsigned integer.
func (r *Reader) ReadU32BE() (uint32, error) {
	b, err := r.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ReadU24BE reads a big-endian 24-bit unsigned integer (FLAC block lengths).
func (r *Reader) ReadU24BE() (uint32, error) {
	b, err := r.ReadExact(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// ReadU32LE reads a little-endian 32-bit unsigned integer (APE, Vorbis).
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadSynchsafeU32 reads four bytes interpreted as 7-bit big-endian,
// failing if any byte has its high bit set.
func (r *Reader) ReadSynchsafeU32() (uint32, error) {
	b, err := r.ReadExact(4)
	if err != nil {
		return 0, err
	}
	var n uint32
	for _, c := range b {
		if c&0x80 != 0 {
			return 0, ErrInvalidSynchsafe
		}
		n = n<<7 | uint32(c)
	}
	return n, nil
}

// Peek returns the next n bytes without advancing the cursor. It does not
// apply the unsynchronisation view (callers that need peeked bytes to
// reflect it should ReadExact and handle backtracking themselves). It is
// used for magic-number probing and for the ID3v2 frame loop's one-byte
// padding check; in both cases the raw byte is what gets compared.
func (r *Reader) Peek(n int) ([]byte, error) {
	if r.pos+uint64(n) > r.top() {
		return nil, ErrEndOfStream
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return nil, ErrEndOfStream
	}
	if _, err := r.src.Seek(int64(r.pos), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "breader: seek back after peek")
	}
	return buf, nil
}

// ReadAt reads n bytes starting at an absolute offset without disturbing
// the reader's current position or window stack. Used for structural
// lookahead — the v2.4 frame-size fallback heuristic needs to peek past
// the current frame to see whether a candidate size lands on a valid next
// frame, tag end, or padding.
func (r *Reader) ReadAt(pos uint64, n int) ([]byte, error) {
	if pos+uint64(n) > r.length {
		return nil, ErrEndOfStream
	}
	if _, err := r.src.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "breader: seek")
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r.src, buf)
	if _, serr := r.src.Seek(int64(r.pos), io.SeekStart); serr != nil {
		return nil, errors.Wrap(serr, "breader: seek back")
	}
	if err != nil {
		return nil, ErrEndOfStream
	}
	return buf, nil
}

// Discard skips n bytes, applying window bounds but not unsynchronisation
// accounting (padding regions are never unsynchronised content worth
// decoding).
func (r *Reader) Discard(n uint64) error {
	if r.pos+n > r.top() {
		return ErrEndOfStream
	}
	if _, err := r.src.Seek(int64(r.pos+n), io.SeekStart); err != nil {
		return errors.Wrap(err, "breader: seek")
	}
	r.pos += n
	return nil
}

// Encoding identifies one of the four ID3v2 text-frame encodings.
type Encoding byte

const (
	EncLatin1   Encoding = 0
	EncUTF16BOM Encoding = 1
	EncUTF16BE  Encoding = 2
	EncUTF8     Encoding = 3
)

// unitWidth returns the code-unit width (in bytes) a NUL terminator has
// under enc: one byte for Latin-1/UTF-8, two bytes (aligned) for UTF-16.
func (e Encoding) unitWidth() int {
	if e == EncUTF16BOM || e == EncUTF16BE {
		return 2
	}
	return 1
}

// readRawUntilTerminator reads code-unit-width chunks until an all-zero
// chunk (the terminator, consumed but not returned) or the window is
// exhausted, whichever comes first. A lone zero byte at an odd offset from
// a two-byte encoding never terminates — chunks are always read in full
// code-unit widths, so misaligned single NULs some writers emit are never
// mistaken for a terminator.
func (r *Reader) readRawUntilTerminator(width int) ([]byte, bool, error) {
	var out []byte
	for r.Remaining() >= uint64(width) {
		chunk, err := r.ReadExact(width)
		if err != nil {
			return out, false, err
		}
		allZero := true
		for _, b := range chunk {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			return out, true, nil
		}
		out = append(out, chunk...)
	}
	return out, false, nil
}

// DecodeLatin1 decodes raw ISO-8859-1 bytes to a UTF-8 Go string. Exported
// for decoders (id3v1) that need Latin-1 decoding outside of a frame's
// encoding-byte dispatch.
func DecodeLatin1(raw []byte) string {
	return decodeLatin1(raw)
}

func decodeLatin1(raw []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		// ISO-8859-1 maps every byte value, so this never actually fails;
		// fall back to the identity mapping defensively.
		r := make([]rune, len(raw))
		for i, b := range raw {
			r[i] = rune(b)
		}
		return string(r)
	}
	return string(out)
}

func decodeUTF16(raw []byte, enc Encoding) string {
	if enc == EncUTF16BOM {
		endian := unicode.LittleEndian
		if len(raw) >= 2 {
			switch {
			case raw[0] == 0xFF && raw[1] == 0xFE:
				endian = unicode.LittleEndian
				raw = raw[2:]
			case raw[0] == 0xFE && raw[1] == 0xFF:
				endian = unicode.BigEndian
				raw = raw[2:]
			default:
				// No recognisable BOM: spec says absence implies
				// Little-Endian, and the bytes are data, not a BOM.
			}
		}
		out, err := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
		if err != nil {
			return string(raw)
		}
		return string(out)
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// ReadTerminatedText decodes a NUL-terminated (or window-exhausted) string
// under enc, consuming the terminator when present.
func (r *Reader) ReadTerminatedText(enc Encoding) (string, error) {
	raw, _, err := r.readRawUntilTerminator(enc.unitWidth())
	if err != nil {
		return "", err
	}
	return decodeText(raw, enc), nil
}

// ReadRemainderText decodes every remaining byte in the current window
// under enc, with no terminator expected (used for the final field of a
// frame, e.g. a TXXX value or a URL).
func (r *Reader) ReadRemainderText(enc Encoding) (string, error) {
	raw, err := r.ReadExact(int(r.Remaining()))
	if err != nil {
		return "", err
	}
	return decodeText(raw, enc), nil
}

func decodeText(raw []byte, enc Encoding) string {
	switch enc {
	case EncLatin1:
		return decodeLatin1(raw)
	case EncUTF16BOM, EncUTF16BE:
		return decodeUTF16(raw, enc)
	case EncUTF8:
		return string(raw)
	default:
		return string(raw)
	}
}
