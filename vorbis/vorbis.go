// Package vorbis decodes a Vorbis comment packet: a vendor string followed
// by a sequence of length-prefixed "KEY=value" entries.
package vorbis

import (
	"bytes"

	"github.com/streamtag/audiometa/internal/breader"
	"github.com/streamtag/audiometa/meta"
)

// CommentPreamble is the packet-type byte plus "vorbis" that prefixes a
// Vorbis comment packet inside an Ogg logical bitstream. FLAC's
// VORBIS_COMMENT metadata block carries no such preamble — its block body
// is the comment packet directly.
const CommentPreamble = "\x03vorbis"

// DecodeComment decodes a Vorbis comment packet body into a MetadataMap.
// raw must not include CommentPreamble when the caller is reading from an
// Ogg stream; strip it first.
func DecodeComment(raw []byte) (*meta.MetadataMap, error) {
	mm := meta.NewMetadataMap()

	br := breader.New(bytes.NewReader(raw), uint64(len(raw)))
	if err := br.PushWindow(uint64(len(raw)), false); err != nil {
		return mm, nil
	}
	defer br.PopWindow()

	vendorLen, err := br.ReadU32LE()
	if err != nil {
		return mm, nil
	}
	if uint64(vendorLen) > br.Remaining() {
		return mm, nil
	}
	if _, err := br.ReadExact(int(vendorLen)); err != nil {
		return mm, nil
	}

	// comment_count is advisory; the loop below stops on window exhaustion
	// regardless of what it says.
	if _, err := br.ReadU32LE(); err != nil {
		return mm, nil
	}

	for br.Remaining() >= 4 {
		entryLen, err := br.ReadU32LE()
		if err != nil {
			break
		}
		if uint64(entryLen) > br.Remaining() {
			break
		}
		entry, err := br.ReadExact(int(entryLen))
		if err != nil {
			break
		}

		key, value, ok := splitEntry(entry)
		if !ok {
			continue
		}
		mm.Put(key, value)
	}

	return mm, nil
}

// splitEntry splits a "KEY=value" entry at the first '=', validating that
// every byte before it is a legal key character. A malformed entry (no '=',
// or an illegal key byte) is reported via ok=false and skipped by the
// caller.
func splitEntry(raw []byte) (key, value string, ok bool) {
	idx := -1
	for i, b := range raw {
		if b == '=' {
			idx = i
			break
		}
		if !validKeyByte(b) {
			return "", "", false
		}
	}
	if idx < 0 {
		return "", "", false
	}
	return string(raw[:idx]), string(raw[idx+1:]), true
}

func validKeyByte(b byte) bool {
	return b >= 0x20 && b <= 0x7D && b != '='
}
