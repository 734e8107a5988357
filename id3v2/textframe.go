package id3v2

import (
	"strings"

	"github.com/streamtag/audiometa/internal/breader"
)

// decodeTextValues reads a text frame body (everything after the leading
// encoding byte) as zero or more NUL-terminated strings, per §4.3.4: v2.3
// effectively carries one value (possibly "/"-joined by the tagger), v2.4
// may repeat NUL-terminated values. A trailing empty value (a dangling
// terminator with nothing after it) is dropped.
func decodeTextValues(br *breader.Reader, enc breader.Encoding) ([]string, error) {
	var values []string
	for br.Remaining() > 0 {
		s, err := br.ReadTerminatedText(enc)
		if err != nil {
			return values, err
		}
		values = append(values, s)
	}
	// If the window ended exactly on a terminator, readRawUntilTerminator
	// already stopped emitting; but if it ended mid-value (no terminator
	// found) the partial value is still useful and was already appended.
	if len(values) > 0 && values[len(values)-1] == "" {
		values = values[:len(values)-1]
	}
	return values, nil
}

// decodeUserDefined reads a TXXX/WXXX-shaped body: an encoding byte (already
// consumed by the caller for TXXX; WXXX has no text encoding applied to its
// URL but does for its description), a NUL-terminated description, then the
// remaining bytes as the value.
func decodeUserDefined(br *breader.Reader, descEnc, valueEnc breader.Encoding) (description, value string, err error) {
	description, err = br.ReadTerminatedText(descEnc)
	if err != nil {
		return "", "", err
	}
	value, err = br.ReadRemainderText(valueEnc)
	if err != nil {
		return description, "", err
	}
	return description, value, nil
}

// decodeFullText reads a COMM/USLT-shaped body: encoding byte (already
// consumed), a 3-byte language code, a NUL-terminated description, then the
// value.
func decodeFullText(br *breader.Reader, enc breader.Encoding) (language, description, value string, err error) {
	langBytes, err := br.ReadExact(3)
	if err != nil {
		return "", "", "", err
	}
	language = string(langBytes)
	description, err = br.ReadTerminatedText(enc)
	if err != nil {
		return language, "", "", err
	}
	value, err = br.ReadRemainderText(enc)
	if err != nil {
		return language, description, "", err
	}
	return language, description, value, nil
}

// v22FrameID returns the effective 3-character frame name when a v2.3/v2.4
// tag contains a 3-character-looking ID (last byte zero, first 3 valid),
// per §4.3.4's ID3v2.2-compatibility note. It is emitted verbatim, never
// translated to the v2.3/2.4 equivalent.
func v22FrameID(id []byte) string {
	if len(id) == 4 && id[3] == 0 && validFrameID(id[:3]) {
		return string(id[:3])
	}
	return strings.TrimRight(string(id), "\x00")
}
