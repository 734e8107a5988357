package breader

import (
	"bytes"
	"testing"
)

func newTestReader(data []byte) *Reader {
	return New(bytes.NewReader(data), uint64(len(data)))
}

func TestReadExactAndPos(t *testing.T) {
	r := newTestReader([]byte("hello world"))
	b, err := r.ReadExact(5)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("ReadExact = %q, want %q", b, "hello")
	}
	if r.Pos() != 5 {
		t.Fatalf("Pos() = %d, want 5", r.Pos())
	}
}

func TestReadExactPastEndOfStream(t *testing.T) {
	r := newTestReader([]byte("ab"))
	if _, err := r.ReadExact(3); err != ErrEndOfStream {
		t.Fatalf("ReadExact past EOF = %v, want ErrEndOfStream", err)
	}
}

func TestWindowBoundsReads(t *testing.T) {
	r := newTestReader([]byte("0123456789"))
	if err := r.PushWindow(5, false); err != nil {
		t.Fatalf("PushWindow: %v", err)
	}
	if _, err := r.ReadExact(5); err != nil {
		t.Fatalf("ReadExact within window: %v", err)
	}
	if _, err := r.ReadExact(1); err != ErrEndOfStream {
		t.Fatalf("ReadExact past window end = %v, want ErrEndOfStream", err)
	}
	r.PopWindow()
	if _, err := r.ReadExact(1); err != nil {
		t.Fatalf("ReadExact after PopWindow should resume: %v", err)
	}
}

func TestSeekToClearsWindows(t *testing.T) {
	r := newTestReader([]byte("0123456789"))
	if err := r.PushWindow(3, false); err != nil {
		t.Fatal(err)
	}
	if err := r.SeekTo(7); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	if _, err := r.ReadExact(3); err != nil {
		t.Fatalf("read after SeekTo should not be bounded by the old window: %v", err)
	}
}

func TestUnsynchronisationDropsZeroAfterFF(t *testing.T) {
	// 0xFF 0x00 0xAB: the 0x00 immediately after 0xFF is dropped.
	r := newTestReader([]byte{0xFF, 0x00, 0xAB})
	if err := r.PushWindow(3, true); err != nil {
		t.Fatal(err)
	}
	b, err := r.ReadExact(2)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if len(b) != 2 || b[0] != 0xFF || b[1] != 0xAB {
		t.Fatalf("ReadExact = %v, want [FF AB]", b)
	}
	if r.Pos() != 3 {
		t.Fatalf("Pos() = %d, want 3 (source bytes, not decoded bytes)", r.Pos())
	}
}

func TestUnsynchronisationKeepsZeroNotAfterFF(t *testing.T) {
	r := newTestReader([]byte{0x01, 0x00, 0x02})
	if err := r.PushWindow(3, true); err != nil {
		t.Fatal(err)
	}
	b, err := r.ReadExact(3)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if len(b) != 3 {
		t.Fatalf("ReadExact = %v, want all 3 bytes kept", b)
	}
}

func TestReadSynchsafeU32(t *testing.T) {
	r := newTestReader([]byte{0x00, 0x00, 0x02, 0x01})
	n, err := r.ReadSynchsafeU32()
	if err != nil {
		t.Fatalf("ReadSynchsafeU32: %v", err)
	}
	want := uint32(2)<<7 | 1
	if n != want {
		t.Fatalf("ReadSynchsafeU32 = %d, want %d", n, want)
	}
}

func TestReadSynchsafeU32RejectsHighBit(t *testing.T) {
	r := newTestReader([]byte{0x00, 0x00, 0x80, 0x01})
	if _, err := r.ReadSynchsafeU32(); err != ErrInvalidSynchsafe {
		t.Fatalf("ReadSynchsafeU32 with high bit set = %v, want ErrInvalidSynchsafe", err)
	}
}

func TestReadAtDoesNotDisturbPosition(t *testing.T) {
	r := newTestReader([]byte("0123456789"))
	if _, err := r.ReadExact(2); err != nil {
		t.Fatal(err)
	}
	b, err := r.ReadAt(8, 2)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(b) != "89" {
		t.Fatalf("ReadAt(8,2) = %q, want %q", b, "89")
	}
	if r.Pos() != 2 {
		t.Fatalf("Pos() after ReadAt = %d, want 2 (unchanged)", r.Pos())
	}
}

func TestReadTerminatedTextLatin1(t *testing.T) {
	r := newTestReader([]byte("caf\xe9\x00rest"))
	if err := r.PushWindow(9, false); err != nil {
		t.Fatal(err)
	}
	s, err := r.ReadTerminatedText(EncLatin1)
	if err != nil {
		t.Fatalf("ReadTerminatedText: %v", err)
	}
	if s != "café" {
		t.Fatalf("ReadTerminatedText = %q, want %q", s, "café")
	}
	rest, err := r.ReadRemainderText(EncLatin1)
	if err != nil {
		t.Fatalf("ReadRemainderText: %v", err)
	}
	if rest != "rest" {
		t.Fatalf("ReadRemainderText = %q, want %q", rest, "rest")
	}
}

func TestReadTerminatedTextUTF16LEWithBOM(t *testing.T) {
	// BOM (FF FE) + "hi" UTF-16LE + terminator
	raw := []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00, 0x00, 0x00}
	r := newTestReader(raw)
	if err := r.PushWindow(uint64(len(raw)), false); err != nil {
		t.Fatal(err)
	}
	s, err := r.ReadTerminatedText(EncUTF16BOM)
	if err != nil {
		t.Fatalf("ReadTerminatedText: %v", err)
	}
	if s != "hi" {
		t.Fatalf("ReadTerminatedText(UTF16BOM) = %q, want %q", s, "hi")
	}
}

func TestReadTerminatedTextOddZeroByteNotMistakenForTerminator(t *testing.T) {
	// UTF-16BE U+0100 then "A" is 01 00 00 41: the zero bytes at offsets 1
	// and 2 straddle a code-unit boundary and must never be read as a
	// terminator; only the aligned 00 00 at offsets 4-5 terminates.
	raw := []byte{0x01, 0x00, 0x00, 0x41, 0x00, 0x00}
	r := newTestReader(raw)
	if err := r.PushWindow(uint64(len(raw)), false); err != nil {
		t.Fatal(err)
	}
	s, err := r.ReadTerminatedText(EncUTF16BE)
	if err != nil {
		t.Fatalf("ReadTerminatedText: %v", err)
	}
	if s != "ĀA" {
		t.Fatalf("ReadTerminatedText(UTF16BE) = %q, want %q", s, "ĀA")
	}
}

func TestDecodeLatin1HighBytes(t *testing.T) {
	s := DecodeLatin1([]byte{0xE9}) // é
	if s != "é" {
		t.Fatalf("DecodeLatin1(0xE9) = %q, want %q", s, "é")
	}
}

func TestDiscard(t *testing.T) {
	r := newTestReader([]byte("0123456789"))
	if err := r.Discard(5); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	b, err := r.ReadExact(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "5" {
		t.Fatalf("ReadExact after Discard = %q, want %q", b, "5")
	}
}
