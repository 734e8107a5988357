package id3v1

import (
	"bytes"
	"testing"

	"github.com/streamtag/audiometa/internal/breader"
)

func buildTag(title, artist, album, year, comment string, track, genre byte) []byte {
	buf := make([]byte, Size)
	copy(buf[0:3], Magic)
	copy(buf[3:33], title)
	copy(buf[33:63], artist)
	copy(buf[63:93], album)
	copy(buf[93:97], year)
	if track > 0 {
		copy(buf[97:125], comment)
		buf[125] = 0x00
		buf[126] = track
	} else {
		copy(buf[97:127], comment)
	}
	buf[127] = genre
	return buf
}

func decode(t *testing.T, data []byte) *Tag {
	t.Helper()
	br := breader.New(bytes.NewReader(data), uint64(len(data)))
	tag, err := Decode(br, 0, uint64(len(data)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return tag
}

func TestDecodeBasicFields(t *testing.T) {
	data := buildTag("My Title", "My Artist", "My Album", "1998", "A comment", 0, 17)
	tag := decode(t, data)
	if tag == nil {
		t.Fatal("Decode returned nil for a well-formed tag")
	}

	cases := map[string]string{
		"Title":   "My Title",
		"Artist":  "My Artist",
		"Album":   "My Album",
		"Year":    "1998",
		"Comment": "A comment",
		"Genre":   "Rock",
	}
	for k, want := range cases {
		got, ok := tag.Metadata.Map.GetFirst(k)
		if !ok || got != want {
			t.Errorf("%s = %q, %v, want %q, true", k, got, ok, want)
		}
	}
	if tag.Metadata.StartOffset != 0 || tag.Metadata.EndOffset != Size {
		t.Errorf("offsets = %d,%d, want 0,%d", tag.Metadata.StartOffset, tag.Metadata.EndOffset, Size)
	}
}

func TestTrackDetection(t *testing.T) {
	data := buildTag("T", "A", "Al", "2001", "comment text here", 5, 10)
	tag := decode(t, data)
	if tag == nil {
		t.Fatal("Decode returned nil")
	}
	track, ok := tag.Metadata.Map.GetFirst("Track")
	if !ok || track != "5" {
		t.Fatalf("Track = %q, %v, want %q, true", track, ok, "5")
	}
	comment, _ := tag.Metadata.Map.GetFirst("Comment")
	if comment != "comment text here" {
		t.Fatalf("Comment = %q, want %q", comment, "comment text here")
	}
}

func TestGenreEdgeCases(t *testing.T) {
	unknown := buildTag("T", "A", "Al", "2001", "c", 0, 0xFF)
	tag := decode(t, unknown)
	if _, ok := tag.Metadata.Map.GetFirst("Genre"); ok {
		t.Fatal("genre 0xFF should be omitted")
	}

	outOfRange := buildTag("T", "A", "Al", "2001", "c", 0, 250)
	tag = decode(t, outOfRange)
	g, ok := tag.Metadata.Map.GetFirst("Genre")
	if !ok || g != "250" {
		t.Fatalf("out-of-range genre = %q, %v, want %q, true", g, ok, "250")
	}
}

func TestEmptyFieldsOmitted(t *testing.T) {
	data := buildTag("", "", "", "\x00\x00\x00\x00", "", 0, 0xFF)
	tag := decode(t, data)
	if tag.Metadata.Map.Len() != 0 {
		var got []string
		tag.Metadata.Map.Each(func(n, v string) { got = append(got, n) })
		t.Fatalf("expected all fields omitted, got %v", got)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := buildTag("T", "A", "Al", "2001", "c", 0, 0)
	copy(data[0:3], "xyz")
	tag := decode(t, data)
	if tag != nil {
		t.Fatal("Decode should return nil when magic doesn't match")
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	br := breader.New(bytes.NewReader(make([]byte, 64)), 64)
	tag, err := Decode(br, 0, 64)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tag != nil {
		t.Fatal("Decode should return nil when the window isn't exactly 128 bytes")
	}
}
