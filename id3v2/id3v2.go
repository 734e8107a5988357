// Package id3v2 decodes ID3v2 tags (versions 2.2, 2.3, 2.4): tag and frame
// framing, unsynchronisation, extended headers, and per-frame text
// decoding. It is the largest and most complex decoder in this module,
// mirroring how much of the real-world format's complexity lives here.
package id3v2

import (
	"log"

	"github.com/pkg/errors"

	"github.com/streamtag/audiometa/internal/breader"
	"github.com/streamtag/audiometa/meta"
)

var (
	// ErrBadHeader describes an offset that cannot hold an ID3v2 header.
	// Decode and DecodeFooter do not return it; they report a missing or
	// unusable header as (nil, nil).
	ErrBadHeader = errors.New("id3v2: not an ID3v2 tag at this offset")
)

// Tag is a decoded ID3v2 tag.
type Tag struct {
	Header                Header
	Metadata              meta.Metadata
	Comments              meta.FullTextMap
	UnsynchronizedLyrics  meta.FullTextMap
}

// Decode reads an ID3v2 tag whose header starts at the absolute offset
// start. It returns (nil, nil) if start does not hold a recognisable
// ID3v2 header.
func Decode(br *breader.Reader, start uint64) (*Tag, error) {
	if err := br.SeekTo(start); err != nil {
		return nil, err
	}
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}

	bodyStart := br.Pos()
	fileLen := br.Len()
	declaredEnd := bodyStart + uint64(h.Size)
	bodyEnd := declaredEnd
	if bodyEnd > fileLen {
		bodyEnd = fileLen
	}

	mm, comments, lyrics := decodeBody(br, h, bodyEnd)

	end := bodyEnd
	if h.footerPresent() && bodyEnd == declaredEnd && end+footerSize <= fileLen {
		end += footerSize
	}

	tag := &Tag{
		Header:               *h,
		Metadata:             meta.Metadata{StartOffset: start, EndOffset: end, Map: mm},
		Comments:             comments,
		UnsynchronizedLyrics: lyrics,
	}
	return tag, nil
}

// DecodeFooter reads a v2.4 footer ("3DI") located at [end-10, end) and
// decodes the tag backwards from it: the footer carries the same fields as
// the header (major, minor, flags, size), and the tag body precedes the
// footer by size bytes.
func DecodeFooter(br *breader.Reader, end uint64) (*Tag, error) {
	if end < footerSize {
		return nil, nil
	}
	footerStart := end - footerSize
	if err := br.SeekTo(footerStart); err != nil {
		return nil, err
	}
	raw, err := br.ReadExact(footerSize)
	if err != nil {
		return nil, nil
	}
	if string(raw[0:3]) != FooterMagic {
		return nil, nil
	}
	h := &Header{
		MajorVersion: raw[3],
		MinorVersion: raw[4],
		Flags:        raw[5],
	}
	if h.MajorVersion < 2 || h.MajorVersion > 4 || h.MinorVersion == 0xFF {
		return nil, nil
	}
	size, err := synchsafeFromBytes(raw[6:10])
	if err != nil {
		return nil, nil
	}
	h.Size = size

	if uint64(size) > footerStart {
		// Can't locate a body that starts before offset 0.
		return nil, nil
	}
	bodyStart := footerStart - uint64(size)
	if err := br.SeekTo(bodyStart); err != nil {
		return nil, err
	}
	// The header preceding this body (if any) is not re-validated here —
	// footer-located tags are identified and bounded by the footer alone.

	mm, comments, lyrics := decodeBody(br, h, footerStart)

	tag := &Tag{
		Header:               *h,
		Metadata:             meta.Metadata{StartOffset: bodyStart, EndOffset: end, Map: mm},
		Comments:             comments,
		UnsynchronizedLyrics: lyrics,
	}
	return tag, nil
}

func decodeBody(br *breader.Reader, h *Header, bodyEnd uint64) (*meta.MetadataMap, meta.FullTextMap, meta.FullTextMap) {
	mm := meta.NewMetadataMap()
	var comments, lyrics meta.FullTextMap

	if bodyEnd < br.Pos() {
		return mm, comments, lyrics
	}

	globalUnsync := h.MajorVersion == 3 && h.unsynchronised()
	if err := br.PushWindow(bodyEnd, globalUnsync); err != nil {
		return mm, comments, lyrics
	}
	defer br.PopWindow()

	if _, err := skipExtendedHeader(br, h); err != nil {
		// Extended header itself was truncated: nothing more to read.
		return mm, comments, lyrics
	}

	decodeFrames(br, h, bodyEnd, mm, &comments, &lyrics)
	return mm, comments, lyrics
}

func decodeFrames(br *breader.Reader, h *Header, bodyEnd uint64, mm *meta.MetadataMap, comments, lyrics *meta.FullTextMap) {
	idLen := 4
	if h.MajorVersion == 2 {
		idLen = 3
	}

	for {
		if br.Remaining() == 0 {
			return
		}
		peek, err := br.Peek(1)
		if err != nil {
			return
		}
		if peek[0] == 0x00 {
			// Padding: the remainder of the tag body is zero-filled.
			return
		}

		idRaw, err := br.ReadExact(idLen)
		if err != nil {
			return
		}
		if !validFrameID(idRaw) {
			// Tolerate truncation/garbage: stop, keep what we have.
			return
		}

		var frameSize uint32
		var flags uint16

		switch h.MajorVersion {
		case 2:
			szRaw, err := br.ReadExact(3)
			if err != nil {
				return
			}
			frameSize = uint32(szRaw[0])<<16 | uint32(szRaw[1])<<8 | uint32(szRaw[2])
		case 3:
			szRaw, err := br.ReadExact(4)
			if err != nil {
				return
			}
			frameSize = beUint32(szRaw)
			flagsRaw, err := br.ReadExact(2)
			if err != nil {
				return
			}
			flags = beUint16(flagsRaw)
		default: // 4
			szRaw, err := br.ReadExact(4)
			if err != nil {
				return
			}
			flagsRaw, err := br.ReadExact(2)
			if err != nil {
				return
			}
			flags = beUint16(flagsRaw)
			frameDataStart := br.Pos()
			frameSize, err = resolveV24FrameSize(br, szRaw, frameDataStart, bodyEnd)
			if err != nil {
				return
			}
		}

		if uint64(frameSize) > br.Remaining() {
			// Declared size overruns the tag: tolerate truncation and stop.
			return
		}

		frameUnsync := h.MajorVersion == 4 && flags&frameUnsynchronisation != 0
		opaque := flags&frameCompressed != 0 || flags&frameEncrypted != 0
		skipDLI := h.MajorVersion == 4 && flags&frameDataLengthIndicator != 0

		frameEnd := br.Pos() + uint64(frameSize)
		if err := br.PushWindow(frameEnd, frameUnsync); err != nil {
			return
		}

		name := frameName(idRaw, h.MajorVersion)

		if opaque {
			// Compression/encryption: skip the opaque body, no decode.
			br.ReadExact(int(br.Remaining()))
			br.PopWindow()
			continue
		}

		if skipDLI {
			if _, err := br.ReadExact(4); err != nil {
				br.PopWindow()
				return
			}
		}

		if err := decodeFrame(br, name, mm, comments, lyrics); err != nil {
			log.Print(errors.Wrapf(err, "id3v2: decode frame %q", name))
		}

		// Defensively consume whatever the frame decoder left unread so
		// the window pop lands exactly at frameEnd.
		if rem := br.Remaining(); rem > 0 {
			br.ReadExact(int(rem))
		}
		br.PopWindow()
	}
}

func frameName(idRaw []byte, major uint8) string {
	if major == 2 {
		return string(idRaw)
	}
	return v22FrameID(idRaw)
}

func decodeFrame(br *breader.Reader, name string, mm *meta.MetadataMap, comments, lyrics *meta.FullTextMap) error {
	switch name {
	case "COMM", "COMR", "USLT", "USLE":
		return decodeFullTextFrame(br, name, comments, lyrics)
	case "TXXX":
		return decodeTXXXFrame(br, mm)
	case "WXXX":
		return decodeWXXXFrame(br, mm)
	default:
		if len(name) == 0 {
			return nil
		}
		switch name[0] {
		case 'T':
			return decodeStandardTextFrame(br, name, mm)
		case 'W':
			return decodeURLFrame(br, name, mm)
		default:
			// Non-textual frame (APIC, PRIV, UFID, ...): not in scope for
			// a textual-metadata reader. Leave unread bytes to the
			// caller's defensive drain.
			return nil
		}
	}
}

func decodeStandardTextFrame(br *breader.Reader, name string, mm *meta.MetadataMap) error {
	encByte, err := br.ReadU8()
	if err != nil {
		return err
	}
	values, err := decodeTextValues(br, breader.Encoding(encByte))
	if err != nil && len(values) == 0 {
		return err
	}
	for _, v := range values {
		mm.Put(name, v)
	}
	return nil
}

func decodeTXXXFrame(br *breader.Reader, mm *meta.MetadataMap) error {
	encByte, err := br.ReadU8()
	if err != nil {
		return err
	}
	enc := breader.Encoding(encByte)
	description, value, err := decodeUserDefined(br, enc, enc)
	if err != nil {
		return err
	}
	mm.Put(description, value)
	return nil
}

func decodeWXXXFrame(br *breader.Reader, mm *meta.MetadataMap) error {
	encByte, err := br.ReadU8()
	if err != nil {
		return err
	}
	description, err := br.ReadTerminatedText(breader.Encoding(encByte))
	if err != nil {
		return err
	}
	// The URL itself is always Latin-1, regardless of the description's
	// declared encoding.
	value, err := br.ReadRemainderText(breader.EncLatin1)
	if err != nil {
		return err
	}
	mm.Put(description, value)
	return nil
}

func decodeURLFrame(br *breader.Reader, name string, mm *meta.MetadataMap) error {
	value, err := br.ReadRemainderText(breader.EncLatin1)
	if err != nil {
		return err
	}
	mm.Put(name, value)
	return nil
}

func decodeFullTextFrame(br *breader.Reader, name string, comments, lyrics *meta.FullTextMap) error {
	encByte, err := br.ReadU8()
	if err != nil {
		return err
	}
	language, description, value, err := decodeFullText(br, breader.Encoding(encByte))
	if err != nil {
		return err
	}
	switch name {
	case "COMM", "COMR":
		comments.Put(language, description, value)
	case "USLT", "USLE":
		lyrics.Put(language, description, value)
	}
	return nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func trySynchsafeDecode(b []byte) (uint32, bool) {
	var n uint32
	for _, c := range b {
		if c&0x80 != 0 {
			return 0, false
		}
		n = n<<7 | uint32(c)
	}
	return n, true
}

// resolveV24FrameSize implements the v2.4 non-synchsafe frame-size fallback
// (§4.3.3): many real-world v2.4 files declare a raw big-endian size where
// the spec requires synchsafe. If the synchsafe reading's implied frame end
// doesn't land cleanly on a valid next frame, tag end, or padding, retry as
// raw and keep whichever interpretation yields the longer clean run of
// frames. Ties prefer the synchsafe (spec-compliant) reading.
func resolveV24FrameSize(br *breader.Reader, szRaw []byte, frameDataStart, bodyEnd uint64) (uint32, error) {
	sizeB := beUint32(szRaw)
	sizeA, ok := trySynchsafeDecode(szRaw)
	if !ok {
		return sizeB, nil
	}
	if sizeA == sizeB {
		return sizeA, nil
	}

	countA, cleanA := scanFrameRun(br, frameDataStart+uint64(sizeA), bodyEnd)
	if cleanA || countA > 0 {
		// The synchsafe end lands on tag end, padding, or a valid next
		// frame header: no retry as raw.
		return sizeA, nil
	}
	countB, cleanB := scanFrameRun(br, frameDataStart+uint64(sizeB), bodyEnd)

	if betterRun(cleanA, countA, cleanB, countB) {
		return sizeA, nil
	}
	return sizeB, nil
}

func betterRun(cleanA bool, countA int, cleanB bool, countB int) bool {
	if cleanA != cleanB {
		return cleanA
	}
	return countA >= countB
}

// scanFrameRun walks forward from pos counting consecutive structurally
// valid frame headers (ID chars valid, size fitting the remaining body),
// stopping cleanly at padding or exactly at bodyEnd, or uncleanly at the
// first invalid header. It never disturbs br's real read position.
func scanFrameRun(br *breader.Reader, pos, bodyEnd uint64) (count int, clean bool) {
	const maxProbe = 64
	for i := 0; i < maxProbe; i++ {
		if pos == bodyEnd {
			return count, true
		}
		if pos > bodyEnd {
			return count, false
		}
		b, err := br.ReadAt(pos, 1)
		if err != nil {
			return count, false
		}
		if b[0] == 0x00 {
			return count, true
		}
		if bodyEnd-pos < 10 {
			return count, false
		}
		hdr, err := br.ReadAt(pos, 10)
		if err != nil {
			return count, false
		}
		if !validFrameID(hdr[:4]) {
			return count, false
		}
		size, ok := trySynchsafeDecode(hdr[4:8])
		if !ok {
			size = beUint32(hdr[4:8])
		}
		if uint64(size) > bodyEnd-pos-10 {
			return count, false
		}
		count++
		pos += 10 + uint64(size)
	}
	return count, false
}
