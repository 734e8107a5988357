package ogg

import (
	"bytes"
	"testing"

	"github.com/streamtag/audiometa/internal/breader"
)

func putLE32(b []byte, n uint32) {
	b[0] = byte(n)
	b[1] = byte(n >> 8)
	b[2] = byte(n >> 16)
	b[3] = byte(n >> 24)
}

// buildPage assembles one complete, correctly-checksummed Ogg page.
func buildPage(serial, sequence uint32, headerType byte, segTable, payload []byte) []byte {
	header := make([]byte, pageHeaderSize)
	copy(header[0:4], CapturePattern)
	header[4] = 0 // stream structure version
	header[5] = headerType
	putLE32(header[14:18], serial)
	putLE32(header[18:22], sequence)
	header[26] = byte(len(segTable))

	full := append(append([]byte{}, header...), segTable...)
	full = append(full, payload...)
	crc := crcChecksum(full) // checksum field is still zero at this point
	putLE32(full[22:26], crc)
	return full
}

func TestNextPacketSinglePage(t *testing.T) {
	payload := []byte("hello packet")
	page := buildPage(1, 0, 0, []byte{byte(len(payload))}, payload)

	br := breader.New(bytes.NewReader(page), uint64(len(page)))
	pr := NewPacketReader(br)

	packet, start, end, err := pr.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if string(packet) != "hello packet" {
		t.Fatalf("packet = %q, want %q", packet, "hello packet")
	}
	wantStart := uint64(pageHeaderSize + 1)
	if start != wantStart {
		t.Fatalf("start = %d, want %d", start, wantStart)
	}
	if end != wantStart+uint64(len(payload)) {
		t.Fatalf("end = %d, want %d", end, wantStart+uint64(len(payload)))
	}

	packet, _, _, err = pr.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket (2nd): %v", err)
	}
	if packet != nil {
		t.Fatalf("expected no more packets, got %q", packet)
	}
}

func TestNextPacketSpansTwoPages(t *testing.T) {
	part1 := bytes.Repeat([]byte{'A'}, 255)
	part2 := []byte("tail")

	page1 := buildPage(1, 0, 0, []byte{255}, part1)
	page2 := buildPage(1, 1, headerTypeContinued, []byte{byte(len(part2))}, part2)
	data := append(page1, page2...)

	br := breader.New(bytes.NewReader(data), uint64(len(data)))
	pr := NewPacketReader(br)

	packet, _, _, err := pr.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	want := string(part1) + string(part2)
	if string(packet) != want {
		t.Fatalf("packet len = %d, want %d (spanning two pages)", len(packet), len(want))
	}
}

func TestNextPacketSkipsOtherLogicalBitstream(t *testing.T) {
	packetA1 := []byte("streamA-packet1")
	packetB := []byte("streamB-packet")
	packetA2 := []byte("streamA-packet2")

	pageA1 := buildPage(1, 0, 0, []byte{byte(len(packetA1))}, packetA1)
	pageB := buildPage(2, 0, 0, []byte{byte(len(packetB))}, packetB)
	pageA2 := buildPage(1, 1, 0, []byte{byte(len(packetA2))}, packetA2)

	data := append(append(pageA1, pageB...), pageA2...)
	br := breader.New(bytes.NewReader(data), uint64(len(data)))
	pr := NewPacketReader(br)

	p1, _, _, err := pr.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket 1: %v", err)
	}
	if string(p1) != string(packetA1) {
		t.Fatalf("packet 1 = %q, want %q", p1, packetA1)
	}

	p2, _, _, err := pr.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket 2: %v", err)
	}
	if string(p2) != string(packetA2) {
		t.Fatalf("packet 2 = %q, want %q (serial-2 page must be skipped)", p2, packetA2)
	}
}

func TestReadPageRejectsBadCapturePattern(t *testing.T) {
	data := []byte("NOPE" + string(make([]byte, 23)))
	br := breader.New(bytes.NewReader(data), uint64(len(data)))
	p, err := readPage(br)
	if err != nil {
		t.Fatalf("readPage: %v", err)
	}
	if p != nil {
		t.Fatal("readPage should return nil when the capture pattern doesn't match")
	}
}

func TestCRCMismatchDoesNotAbort(t *testing.T) {
	payload := []byte("data")
	page := buildPage(1, 0, 0, []byte{byte(len(payload))}, payload)
	// Corrupt the checksum field; decoding must still proceed.
	page[22] ^= 0xFF

	br := breader.New(bytes.NewReader(page), uint64(len(page)))
	pr := NewPacketReader(br)
	packet, _, _, err := pr.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if string(packet) != "data" {
		t.Fatalf("packet = %q, want %q despite the corrupted checksum", packet, "data")
	}
}
