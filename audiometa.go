// Package audiometa reads tag metadata from audio files without decoding
// any audio: ID3v1, ID3v2 (2.2/2.3/2.4), APEv1/v2, FLAC's Vorbis-comment
// block, and Vorbis comments carried in an Ogg logical bitstream.
package audiometa

import (
	"github.com/streamtag/audiometa/ape"
	"github.com/streamtag/audiometa/flac"
	"github.com/streamtag/audiometa/id3v1"
	"github.com/streamtag/audiometa/id3v2"
	"github.com/streamtag/audiometa/meta"
)

// Kind identifies which tag format a TypedMetadata holds.
type Kind int

const (
	KindID3v1 Kind = iota
	KindID3v2
	KindAPE
	KindFLAC
	KindVorbis
)

func (k Kind) String() string {
	switch k {
	case KindID3v1:
		return "ID3v1"
	case KindID3v2:
		return "ID3v2"
	case KindAPE:
		return "APE"
	case KindFLAC:
		return "FLAC"
	case KindVorbis:
		return "Vorbis"
	default:
		return "unknown"
	}
}

// VorbisTag is a decoded Vorbis comment packet. Unlike the other formats,
// a bare Vorbis comment (as opposed to one embedded in a FLAC metadata
// block, which is reported as a FLAC tag) carries no format-specific
// header worth exposing beyond its byte range.
type VorbisTag struct {
	Metadata meta.Metadata
}

// TypedMetadata is a tagged union over the five tag shapes this module
// produces. Exactly one of the pointer fields matching Kind is non-nil.
type TypedMetadata struct {
	Kind Kind

	ID3v1  *id3v1.Tag
	ID3v2  *id3v2.Tag
	APE    *ape.Tag
	FLAC   *flac.Tag
	Vorbis *VorbisTag
}

func (t TypedMetadata) bounds() (start, end uint64) {
	switch t.Kind {
	case KindID3v1:
		return t.ID3v1.Metadata.StartOffset, t.ID3v1.Metadata.EndOffset
	case KindID3v2:
		return t.ID3v2.Metadata.StartOffset, t.ID3v2.Metadata.EndOffset
	case KindAPE:
		return t.APE.Metadata.StartOffset, t.APE.Metadata.EndOffset
	case KindFLAC:
		return t.FLAC.Metadata.StartOffset, t.FLAC.Metadata.EndOffset
	case KindVorbis:
		return t.Vorbis.Metadata.StartOffset, t.Vorbis.Metadata.EndOffset
	default:
		return 0, 0
	}
}

// AllMetadata is the complete result of reading every tag found in a
// stream, ordered by start_offset ascending.
type AllMetadata struct {
	Tags []TypedMetadata
}
