package audiometa

import (
	"io"
	"log"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/streamtag/audiometa/ape"
	"github.com/streamtag/audiometa/flac"
	"github.com/streamtag/audiometa/id3v1"
	"github.com/streamtag/audiometa/id3v2"
	"github.com/streamtag/audiometa/internal/breader"
	"github.com/streamtag/audiometa/meta"
	"github.com/streamtag/audiometa/ogg"
	"github.com/streamtag/audiometa/vorbis"
)

// Driver drives a single readAll pass over a stream. It is not safe for
// concurrent use by multiple goroutines against the same stream, but
// distinct Drivers over distinct streams don't share state.
type Driver struct {
	Logger *log.Logger
}

// NewDriver returns a Driver whose Logger writes to stderr. The Logger is
// used only when an Ogg Vorbis comment packet fails to decode; a failed Ogg
// page checksum or a skipped ID3v2 frame is logged by the ogg and id3v2
// packages through the standard library's default logger instead.
func NewDriver() *Driver {
	return &Driver{Logger: log.New(os.Stderr, "", log.LstdFlags)}
}

// ReadAll probes src for every tag format this module understands: ID3v2
// prefix tags, a FLAC or Ogg/Vorbis head stream, and ID3v1/APE/ID3v2-footer
// tail tags. It returns the tags found, ordered by start_offset ascending.
func (d *Driver) ReadAll(src io.ReadSeeker) (*AllMetadata, error) {
	length, err := streamLength(src)
	if err != nil {
		return nil, errors.Wrap(err, "audiometa: determine stream length")
	}
	br := breader.New(src, length)

	var tags []TypedMetadata

	headPos, headTags, err := d.probeHead(br, length)
	if err != nil {
		return nil, err
	}
	tags = append(tags, headTags...)

	tailTags, err := d.probeTail(br, length, headPos)
	if err != nil {
		return nil, err
	}
	tags = append(tags, tailTags...)

	sort.SliceStable(tags, func(i, j int) bool {
		si, _ := tags[i].bounds()
		sj, _ := tags[j].bounds()
		return si < sj
	})

	return &AllMetadata{Tags: pruneOverlaps(tags)}, nil
}

// probeHead decodes zero or more prepended ID3v2 tags, then checks whether
// the stream at the resulting cursor is a FLAC or Ogg/Vorbis head. It
// returns the cursor position past the prepended ID3v2 tags (a FLAC or Ogg
// head tag does not advance it) so probeTail knows where the tail region
// must not encroach.
func (d *Driver) probeHead(br *breader.Reader, length uint64) (uint64, []TypedMetadata, error) {
	var tags []TypedMetadata
	pos := uint64(0)

	for {
		tag, err := id3v2.Decode(br, pos)
		if err != nil {
			return pos, tags, err
		}
		if tag == nil {
			break
		}
		tags = append(tags, TypedMetadata{Kind: KindID3v2, ID3v2: tag})
		pos = tag.Metadata.EndOffset
	}

	if pos+4 > length {
		return pos, tags, nil
	}
	if err := br.SeekTo(pos); err != nil {
		return pos, tags, err
	}
	magic, err := br.Peek(4)
	if err != nil {
		return pos, tags, nil
	}

	switch string(magic) {
	case flac.Magic:
		t, err := flac.Decode(br, pos)
		if err != nil {
			return pos, tags, err
		}
		if t != nil {
			tags = append(tags, TypedMetadata{Kind: KindFLAC, FLAC: t})
		}
	case ogg.CapturePattern:
		if vt := d.decodeOggVorbis(br, pos); vt != nil {
			tags = append(tags, *vt)
		}
	}

	return pos, tags, nil
}

// decodeOggVorbis reassembles the first two packets of the Ogg logical
// bitstream starting at pos (identification, then comment) and decodes the
// comment packet. Any framing failure yields nil rather than an error: an
// Ogg stream that doesn't carry Vorbis is simply not a tag source we
// recognise.
func (d *Driver) decodeOggVorbis(br *breader.Reader, pos uint64) *TypedMetadata {
	if err := br.SeekTo(pos); err != nil {
		return nil
	}
	pr := ogg.NewPacketReader(br)

	if _, _, _, err := pr.NextPacket(); err != nil {
		return nil
	}
	data, start, end, err := pr.NextPacket()
	if err != nil || data == nil {
		return nil
	}

	body := data
	if len(body) >= len(vorbis.CommentPreamble) && string(body[:len(vorbis.CommentPreamble)]) == vorbis.CommentPreamble {
		body = body[len(vorbis.CommentPreamble):]
	}
	mm, err := vorbis.DecodeComment(body)
	if err != nil {
		d.Logger.Print(errors.Wrap(err, "audiometa: decode vorbis comment"))
		return nil
	}

	return &TypedMetadata{
		Kind:   KindVorbis,
		Vorbis: &VorbisTag{Metadata: meta.Metadata{StartOffset: start, EndOffset: end, Map: mm}},
	}
}

// probeTail works backward from the end of the stream: ID3v1, then zero or
// more APE tags, then an ID3v2 footer. headBound is the cursor position
// reached by probeHead — the tail region must never cross back over it
// (guards against a tiny or all-tag-no-audio file producing a
// self-overlapping head+tail pair).
func (d *Driver) probeTail(br *breader.Reader, length, headBound uint64) ([]TypedMetadata, error) {
	var tags []TypedMetadata
	end := length

	if end >= id3v1.Size && end-id3v1.Size >= headBound {
		t, err := id3v1.Decode(br, end-id3v1.Size, end)
		if err != nil {
			return tags, err
		}
		if t != nil {
			tags = append(tags, TypedMetadata{Kind: KindID3v1, ID3v1: t})
			end -= id3v1.Size
		}
	}

	for end >= headBound {
		t, err := ape.Decode(br, end)
		if err != nil {
			return tags, err
		}
		if t == nil {
			break
		}
		tags = append(tags, TypedMetadata{Kind: KindAPE, APE: t})
		if t.Metadata.StartOffset >= end {
			break // malformed zero-length span; avoid looping forever
		}
		end = t.Metadata.StartOffset
	}

	if end >= headBound {
		t, err := id3v2.DecodeFooter(br, end)
		if err != nil {
			return tags, err
		}
		if t != nil {
			tags = append(tags, TypedMetadata{Kind: KindID3v2, ID3v2: t})
		}
	}

	return tags, nil
}

// pruneOverlaps drops any tag whose start_offset falls before the previous
// (lower-start) tag's end_offset. tags must already be sorted by start.
func pruneOverlaps(tags []TypedMetadata) []TypedMetadata {
	out := make([]TypedMetadata, 0, len(tags))
	var lastEnd uint64
	for _, t := range tags {
		s, e := t.bounds()
		if len(out) > 0 && s < lastEnd {
			continue
		}
		out = append(out, t)
		lastEnd = e
	}
	return out
}

func streamLength(src io.ReadSeeker) (uint64, error) {
	cur, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := src.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return uint64(end), nil
}
