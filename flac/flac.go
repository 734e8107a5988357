// Package flac walks a FLAC stream's metadata-block chain far enough to
// decode its Vorbis-comment block, if any.
package flac

import (
	"github.com/streamtag/audiometa/internal/breader"
	"github.com/streamtag/audiometa/meta"
	"github.com/streamtag/audiometa/vorbis"
)

// Magic is the 4-byte signature opening a FLAC stream.
const Magic = "fLaC"

const blockTypeVorbisComment = 4

// Tag is a decoded FLAC stream's Vorbis-comment metadata block.
type Tag struct {
	Metadata meta.Metadata
}

// Decode walks the metadata-block chain starting at start, which must hold
// the "fLaC" magic, and decodes the first Vorbis-comment block it finds.
// It returns (nil, nil) if start isn't a FLAC stream, or if the chain ends
// (last-block flag set, or truncation) without a Vorbis-comment block.
func Decode(br *breader.Reader, start uint64) (*Tag, error) {
	if err := br.SeekTo(start); err != nil {
		return nil, err
	}
	magic, err := br.Peek(4)
	if err != nil {
		return nil, nil
	}
	if string(magic) != Magic {
		return nil, nil
	}
	if _, err := br.ReadExact(4); err != nil {
		return nil, nil
	}

	for {
		header, err := br.ReadExact(4)
		if err != nil {
			return nil, nil
		}
		last := header[0]&0x80 != 0
		blockType := header[0] & 0x7F
		blockSize := uint32(header[1])<<16 | uint32(header[2])<<8 | uint32(header[3])

		if blockType == blockTypeVorbisComment {
			bodyStart := br.Pos()
			if uint64(blockSize) > br.Remaining() {
				return nil, nil
			}
			body, err := br.ReadExact(int(blockSize))
			if err != nil {
				return nil, nil
			}
			mm, _ := vorbis.DecodeComment(body)
			bodyEnd := bodyStart + uint64(blockSize)
			return &Tag{Metadata: meta.Metadata{StartOffset: bodyStart, EndOffset: bodyEnd, Map: mm}}, nil
		}

		if err := br.Discard(uint64(blockSize)); err != nil {
			return nil, nil
		}
		if last {
			return nil, nil
		}
	}
}
