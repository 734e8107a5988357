// Package ape decodes APEv1/APEv2 tags: a 32-byte header-or-footer
// structure bracketing a run of key/value items.
package ape

import (
	"github.com/streamtag/audiometa/internal/breader"
	"github.com/streamtag/audiometa/meta"
)

// Magic is the 8-byte signature opening both the header and footer form.
const Magic = "APETAGEX"

const structSize = 32
const maxKeyLen = 255

const (
	flagIsHeader = 1 << 31
	flagHasHeader = 1 << 30
)

const (
	itemTypeText     = 0
	itemTypeBinary   = 1
	itemTypeExternal = 2
)

// Header is the decoded 32-byte header-or-footer structure.
type Header struct {
	Version   uint32
	ItemCount uint32
	TagSize   uint32
	Flags     uint32
	IsHeader  bool
}

// Tag is a decoded APE tag.
type Tag struct {
	HeaderOrFooter Header
	Metadata       meta.Metadata
}

func (h *Header) hasHeader() bool { return h.Flags&flagHasHeader != 0 }

// Decode locates an APE footer in the 32 bytes immediately preceding end
// and decodes the tag it closes, following any preceding header the footer
// claims to have. It returns (nil, nil) if end-32 doesn't hold the
// "APETAGEX" signature.
func Decode(br *breader.Reader, end uint64) (*Tag, error) {
	if end < structSize {
		return nil, nil
	}
	footerStart := end - structSize
	h, err := readStruct(br, footerStart)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}

	itemsAndFooterLen := uint64(h.TagSize)
	if itemsAndFooterLen < structSize || itemsAndFooterLen > end {
		// tag_size must at least cover the footer itself.
		return nil, nil
	}
	itemsStart := end - itemsAndFooterLen
	itemsLen := itemsAndFooterLen - structSize

	start := itemsStart
	if h.hasHeader() && itemsStart >= structSize {
		headerStart := itemsStart - structSize
		if hh, _ := readStruct(br, headerStart); hh != nil {
			start = headerStart
		}
	}

	mm, err := decodeItems(br, itemsStart, itemsLen, h.ItemCount)
	if err != nil {
		return nil, err
	}

	return &Tag{
		HeaderOrFooter: *h,
		Metadata:       meta.Metadata{StartOffset: start, EndOffset: end, Map: mm},
	}, nil
}

// DecodeHeader locates an APE header at the given absolute offset and
// decodes the tag it opens. It returns (nil, nil) if start doesn't hold the
// "APETAGEX" signature.
func DecodeHeader(br *breader.Reader, start uint64) (*Tag, error) {
	h, err := readStruct(br, start)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	itemsStart := start + structSize
	if uint64(h.TagSize) < structSize {
		return nil, nil
	}
	itemsLen := uint64(h.TagSize) - structSize
	end := itemsStart + itemsLen + structSize // items + trailing footer

	mm, err := decodeItems(br, itemsStart, itemsLen, h.ItemCount)
	if err != nil {
		return nil, err
	}

	return &Tag{
		HeaderOrFooter: *h,
		Metadata:       meta.Metadata{StartOffset: start, EndOffset: end, Map: mm},
	}, nil
}

func readStruct(br *breader.Reader, at uint64) (*Header, error) {
	raw, err := br.ReadAt(at, structSize)
	if err != nil {
		return nil, nil
	}
	if string(raw[0:8]) != Magic {
		return nil, nil
	}
	h := &Header{
		Version:   leUint32(raw[8:12]),
		TagSize:   leUint32(raw[12:16]),
		ItemCount: leUint32(raw[16:20]),
		Flags:     leUint32(raw[20:24]),
	}
	h.IsHeader = h.Flags&flagIsHeader != 0
	return h, nil
}

func decodeItems(br *breader.Reader, start, length uint64, declaredCount uint32) (*meta.MetadataMap, error) {
	mm := meta.NewMetadataMap()
	if err := br.SeekTo(start); err != nil {
		return mm, err
	}
	if err := br.PushWindow(start+length, false); err != nil {
		return mm, nil
	}
	defer br.PopWindow()

	for br.Remaining() > 0 {
		if br.Remaining() < 8 {
			break
		}
		valueSize, err := br.ReadU32LE()
		if err != nil {
			break
		}
		flags, err := br.ReadU32LE()
		if err != nil {
			break
		}

		key, keyValid, err := readItemKey(br)
		if err != nil {
			break
		}

		if uint64(valueSize) > br.Remaining() {
			// Declared value size overruns the tag: stop, keep prior items.
			break
		}
		value, err := br.ReadExact(int(valueSize))
		if err != nil {
			break
		}

		if !keyValid {
			continue
		}

		itemType := (flags >> 1) & 0x3
		if itemType != itemTypeText {
			continue
		}

		for _, chunk := range splitNUL(value) {
			mm.Put(key, string(chunk))
		}
	}

	_ = declaredCount // advisory only; the window bound is authoritative
	return mm, nil
}

// readItemKey reads a NUL-terminated key, bounded by the current window and
// maxKeyLen. It always consumes through the terminator (or window end) so
// framing stays intact even when the key turns out to be invalid.
func readItemKey(br *breader.Reader) (key string, valid bool, err error) {
	var raw []byte
	valid = true
	for {
		if br.Remaining() == 0 {
			return "", false, breader.ErrEndOfStream
		}
		b, err := br.ReadU8()
		if err != nil {
			return "", false, err
		}
		if b == 0x00 {
			break
		}
		if b < 0x20 || b > 0x7E {
			valid = false
		}
		raw = append(raw, b)
		if len(raw) > maxKeyLen {
			valid = false
		}
	}
	if len(raw) == 0 || len(raw) > maxKeyLen {
		valid = false
	}
	return string(raw), valid, nil
}

func splitNUL(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == 0x00 {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	out = append(out, b[start:])
	return out
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
