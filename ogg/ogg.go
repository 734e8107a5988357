// Package ogg reassembles logical-bitstream packets from an Ogg container's
// page structure: capture-pattern framing, segment tables, and CRC-checked
// pages, concatenated across page boundaries as a packet requires.
//
// Detailed information on the format can be found at http://www.xiph.org/ogg/
package ogg

import (
	"log"

	"github.com/streamtag/audiometa/internal/breader"
)

// CapturePattern is the 4-byte signature opening every Ogg page.
const CapturePattern = "OggS"

// CRC32Polynomial is the generator polynomial used by Ogg's page checksum:
// forward (MSB-first), unreflected, no final XOR. hash/crc32's MakeTable
// only builds reflected (LSB-first) tables, so this doesn't fit it — the
// table below is built by hand instead.
const CRC32Polynomial = 0x04C11DB7

const pageHeaderSize = 27

const (
	headerTypeContinued = 1 << 0
	headerTypeBOS       = 1 << 1
	headerTypeEOS       = 1 << 2
)

var crcTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ CRC32Polynomial
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func crcChecksum(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

type page struct {
	serial       uint32
	sequence     uint32
	continued    bool
	segmentTable []byte
	payload      []byte
	payloadStart uint64
}

// readPage reads one page at the reader's current position. It returns
// (nil, nil) at end of stream or if the capture pattern doesn't match —
// for this package's purposes that just means "no more pages".
func readPage(br *breader.Reader) (*page, error) {
	pageStart := br.Pos()
	magic, err := br.Peek(4)
	if err != nil {
		return nil, nil
	}
	if string(magic) != CapturePattern {
		return nil, nil
	}

	header, err := br.ReadExact(pageHeaderSize)
	if err != nil {
		return nil, nil
	}
	segCount := header[26]
	if uint64(segCount) > br.Remaining() {
		return nil, nil
	}
	segTable, err := br.ReadExact(int(segCount))
	if err != nil {
		return nil, nil
	}

	pageSize := 0
	for _, l := range segTable {
		pageSize += int(l)
	}
	payloadStart := br.Pos()
	if uint64(pageSize) > br.Remaining() {
		return nil, nil
	}
	payload, err := br.ReadExact(pageSize)
	if err != nil {
		return nil, nil
	}

	checkCRC(pageStart, header, segTable, payload)

	p := &page{
		serial:       leUint32(header[14:18]),
		sequence:     leUint32(header[18:22]),
		continued:    header[5]&headerTypeContinued != 0,
		segmentTable: segTable,
		payload:      payload,
		payloadStart: payloadStart,
	}
	return p, nil
}

// checkCRC validates the page checksum and logs, but never fails, on
// mismatch — tools in the wild emit non-standard pages, and parsing must
// proceed regardless.
func checkCRC(pageStart uint64, header, segTable, payload []byte) {
	full := make([]byte, 0, len(header)+len(segTable)+len(payload))
	full = append(full, header...)
	full = append(full, segTable...)
	full = append(full, payload...)
	// The checksum field occupies header bytes 22..26; zero it before
	// recomputing, per the algorithm's definition.
	full[22], full[23], full[24], full[25] = 0, 0, 0, 0

	stored := leUint32(header[22:26])
	computed := crcChecksum(full)
	if computed != stored {
		log.Printf("ogg: page at offset %d failed CRC check (got %08x, want %08x)", pageStart, computed, stored)
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// PacketReader reassembles logical-bitstream packets from a sequence of Ogg
// pages, locking onto the serial number of the first page it encounters and
// skipping pages belonging to any other interleaved logical bitstream.
type PacketReader struct {
	br           *breader.Reader
	serial       uint32
	serialLocked bool
	curPage      *page
	segIdx       int
	payloadPos   int
}

// NewPacketReader wraps br, which must be positioned at the start of the
// first Ogg page to consider.
func NewPacketReader(br *breader.Reader) *PacketReader {
	return &PacketReader{br: br}
}

// NextPacket reassembles and returns the next complete packet, along with
// the absolute byte range its payload occupied in the source stream. It
// returns (nil, 0, 0, nil) once the locked logical bitstream runs out of
// pages.
func (pr *PacketReader) NextPacket() ([]byte, uint64, uint64, error) {
	var packet []byte
	var start uint64
	haveStart := false

	for {
		if pr.curPage == nil || pr.segIdx >= len(pr.curPage.segmentTable) {
			p, err := pr.nextRelevantPage()
			if err != nil {
				return nil, 0, 0, err
			}
			if p == nil {
				if len(packet) > 0 {
					return packet, start, pr.br.Pos(), nil
				}
				return nil, 0, 0, nil
			}
			pr.curPage = p
			pr.segIdx = 0
			pr.payloadPos = 0
		}

		segLen := int(pr.curPage.segmentTable[pr.segIdx])
		segStart := pr.curPage.payloadStart + uint64(pr.payloadPos)
		if !haveStart {
			start = segStart
			haveStart = true
		}
		packet = append(packet, pr.curPage.payload[pr.payloadPos:pr.payloadPos+segLen]...)
		segEnd := segStart + uint64(segLen)
		pr.payloadPos += segLen
		pr.segIdx++

		if segLen < 255 {
			return packet, start, segEnd, nil
		}
		// A segment length of exactly 255 means the packet continues into
		// the next segment, possibly on the next page.
	}
}

func (pr *PacketReader) nextRelevantPage() (*page, error) {
	for {
		p, err := readPage(pr.br)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		if !pr.serialLocked {
			pr.serial = p.serial
			pr.serialLocked = true
		}
		if p.serial != pr.serial {
			continue
		}
		return p, nil
	}
}
