// Package id3v1 decodes the fixed 128-byte ID3v1 trailer found at the end
// of many MP3 files.
package id3v1

import (
	"strconv"
	"strings"

	"github.com/streamtag/audiometa/internal/breader"
	"github.com/streamtag/audiometa/meta"
)

// Size is the fixed length of an ID3v1 tag.
const Size = 128

// Magic is the 3-byte signature identifying an ID3v1 tag.
const Magic = "TAG"

// Tag is a decoded ID3v1 trailer.
type Tag struct {
	Metadata meta.Metadata
}

var genres = []string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk", "Grunge",
	"Hip-Hop", "Jazz", "Metal", "New Age", "Oldies", "Other", "Pop", "R&B",
	"Rap", "Reggae", "Rock", "Techno", "Industrial", "Alternative", "Ska",
	"Death Metal", "Pranks", "Soundtrack", "Euro-Techno", "Ambient", "Trip-Hop",
	"Vocal", "Jazz+Funk", "Fusion", "Trance", "Classical", "Instrumental", "Acid",
	"House", "Game", "Sound Clip", "Gospel", "Noise", "AlternRock", "Bass",
	"Soul", "Punk", "Space", "Meditative", "Instrumental Pop", "Instrumental Rock",
	"Ethnic", "Gothic", "Darkwave", "Techno-Industrial", "Electronic", "Pop-Folk",
	"Eurodance", "Dream", "Southern Rock", "Comedy", "Cult", "Gangsta", "Top 40",
	"Christian Rap", "Pop/Funk", "Jungle", "Native American", "Cabaret", "New Wave",
	"Psychedelic", "Rave", "Showtunes", "Trailer", "Lo-Fi", "Tribal", "Acid Punk",
	"Acid Jazz", "Polka", "Retro", "Musical", "Rock & Roll", "Hard Rock", "Folk",
	"Folk-Rock", "National Folk", "Swing", "Fast Fusion", "Bebop", "Latin",
	"Revival", "Celtic", "Bluegrass", "Avantgarde", "Gothic Rock",
	"Progressive Rock", "Psychedelic Rock", "Symphonic Rock", "Slow Rock",
	"Big Band", "Chorus", "Easy Listening", "Acoustic", "Humour", "Speech",
	"Chanson", "Opera", "Chamber Music", "Sonata", "Symphony", "Booty Bass",
	"Primus", "Porn Groove", "Satire", "Slow Jam", "Club", "Tango", "Samba",
	"Folklore", "Ballad", "Power Ballad", "Rhythmic Soul", "Freestyle", "Duet",
	"Punk Rock", "Drum Solo", "A Cappella", "Euro-House", "Dance Hall",
	"Goa", "Drum & Bass", "Club-House", "Hardcore", "Terror", "Indie",
	"BritPop", "Afro-Punk", "Polsk Punk", "Beat", "Christian Gangsta Rap",
	"Heavy Metal", "Black Metal", "Crossover", "Contemporary Christian",
	"Christian Rock", "Merengue", "Salsa", "Thrash Metal", "Anime", "JPop",
	"Synthpop", "Abstract", "Art Rock", "Baroque", "Bhangra", "Big Beat",
	"Breakbeat", "Chillout", "Downtempo", "Dub", "EBM", "Eclectic", "Electro",
	"Electroclash", "Emo", "Experimental", "Garage", "Global", "IDM",
	"Illbient", "Industro-Goth", "Jam Band", "Krautrock", "Leftfield",
	"Lounge", "Math Rock", "New Romantic", "Nu-Breakz", "Post-Punk",
	"Post-Rock", "Psytrance", "Shoegaze", "Space Rock", "Trop Rock",
	"World Music", "Neoclassical", "Audiobook", "Audio Theatre",
	"Neue Deutsche Welle", "Podcast", "Indie Rock", "G-Funk", "Dubstep",
	"Garage Rock", "Psybient",
}

// Decode reads the 128-byte window [start, end) and returns a Tag if it
// begins with "TAG", or (nil, nil) if the window doesn't hold an ID3v1 tag.
func Decode(br *breader.Reader, start, end uint64) (*Tag, error) {
	if end-start != Size {
		return nil, nil
	}
	if err := br.SeekTo(start); err != nil {
		return nil, err
	}
	magic, err := br.Peek(3)
	if err != nil {
		return nil, nil
	}
	if string(magic) != Magic {
		return nil, nil
	}
	if err := br.PushWindow(end, false); err != nil {
		return nil, err
	}
	defer br.PopWindow()

	if _, err := br.ReadExact(3); err != nil { // consume "TAG"
		return nil, err
	}

	title, err := readField(br, 30)
	if err != nil {
		return nil, err
	}
	artist, err := readField(br, 30)
	if err != nil {
		return nil, err
	}
	album, err := readField(br, 30)
	if err != nil {
		return nil, err
	}
	yearBytes, err := br.ReadExact(4)
	if err != nil {
		return nil, err
	}
	commentBytes, err := br.ReadExact(30)
	if err != nil {
		return nil, err
	}
	genreByte, err := br.ReadU8()
	if err != nil {
		return nil, err
	}

	m := meta.NewMetadata(start, end)

	if s := trim(title); s != "" {
		m.Map.Put("Title", s)
	}
	if s := trim(artist); s != "" {
		m.Map.Put("Artist", s)
	}
	if s := trim(album); s != "" {
		m.Map.Put("Album", s)
	}
	if year := decodeYear(yearBytes); year != "" {
		m.Map.Put("Year", year)
	}

	comment := commentBytes
	if commentBytes[28] == 0x00 && commentBytes[29] != 0x00 {
		m.Map.Put("Track", strconv.Itoa(int(commentBytes[29])))
		comment = commentBytes[:28]
	}
	if s := trim(comment); s != "" {
		m.Map.Put("Comment", s)
	}

	if genreByte != 0xFF {
		if int(genreByte) < len(genres) {
			m.Map.Put("Genre", genres[genreByte])
		} else {
			m.Map.Put("Genre", strconv.Itoa(int(genreByte)))
		}
	}

	return &Tag{Metadata: m}, nil
}

func readField(br *breader.Reader, n int) ([]byte, error) {
	return br.ReadExact(n)
}

// trim decodes raw Latin-1 bytes and trims trailing NUL and space, per the
// ID3v1 convention of right-padding fixed-width fields with either.
func trim(raw []byte) string {
	s := breader.DecodeLatin1(raw)
	return strings.TrimRight(s, "\x00 ")
}

func decodeYear(raw []byte) string {
	allZero := true
	for _, b := range raw {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ""
	}
	return trim(raw)
}
