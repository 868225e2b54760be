package dxl

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Protocol 2.0 docs at https://emanual.robotis.com/docs/en/dxl/protocol2/

const (
	BroadcastID byte = 0xFE
	MaxID       byte = 0xFC
)

// Instructions.
const (
	InstPing      byte = 0x01
	InstRead      byte = 0x02
	InstWrite     byte = 0x03
	InstStatus    byte = 0x55
	InstBulkRead  byte = 0x92
	InstBulkWrite byte = 0x93
)

var header = []byte{0xFF, 0xFF, 0xFD, 0x00}

// headerLen covers header, id and the two length bytes.
const headerLen = 7

// Packet is a decoded instruction or status packet.
type Packet struct {
	ID          byte
	Instruction byte
	// Error is only present in status packets.
	Error  byte
	Params []byte
}

var crcTable [256]uint16

func init() {
	for i := range crcTable {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC computes the CRC-16 (polynomial 0x8005) used to terminate every packet.
func CRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// stuff inserts 0xFD after every FF FF FD sequence so a payload can never
// be mistaken for a header.
func stuff(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/3)
	for i, c := range b {
		out = append(out, c)
		if i >= 2 && c == 0xFD && b[i-1] == 0xFF && b[i-2] == 0xFF {
			out = append(out, 0xFD)
		}
	}
	return out
}

func unstuff(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i, c := range b {
		if i >= 3 && c == 0xFD && b[i-1] == 0xFD && b[i-2] == 0xFF && b[i-3] == 0xFF {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Encode builds an instruction packet.
func Encode(id, instruction byte, params []byte) []byte {
	return encode(id, append([]byte{instruction}, params...))
}

// EncodeStatus builds a status packet, as a device would send it.
func EncodeStatus(id, errByte byte, params []byte) []byte {
	return encode(id, append([]byte{InstStatus, errByte}, params...))
}

func encode(id byte, body []byte) []byte {
	body = stuff(body)
	length := len(body) + 2
	pkt := make([]byte, 0, headerLen+length)
	pkt = append(pkt, header...)
	pkt = append(pkt, id, byte(length), byte(length>>8))
	pkt = append(pkt, body...)
	crc := CRC(pkt)
	return append(pkt, byte(crc), byte(crc>>8))
}

// Frame reports whether buf starts with a complete packet and returns its
// length. Leading garbage before the first header is reported as skip.
func Frame(buf []byte) (skip, n int, err error) {
	i := bytes.Index(buf, header)
	if i < 0 {
		// Keep a possible partial header at the tail.
		skip = len(buf) - len(header) + 1
		if skip < 0 {
			skip = 0
		}
		return skip, 0, nil
	}
	buf = buf[i:]
	if len(buf) < headerLen {
		return i, 0, nil
	}
	length := int(binary.LittleEndian.Uint16(buf[5:7]))
	if length < 3 {
		return i, 0, fmt.Errorf("%w: length %d", ErrBadPacket, length)
	}
	if len(buf) < headerLen+length {
		return i, 0, nil
	}
	return i, headerLen + length, nil
}

// Decode parses exactly one packet.
func Decode(pkt []byte) (Packet, error) {
	if len(pkt) < headerLen+3 || !bytes.Equal(pkt[:len(header)], header) {
		return Packet{}, ErrBadPacket
	}
	length := int(binary.LittleEndian.Uint16(pkt[5:7]))
	if len(pkt) != headerLen+length {
		return Packet{}, fmt.Errorf("%w: length %d, have %d bytes", ErrBadPacket, length, len(pkt)-headerLen)
	}
	end := len(pkt) - 2
	if got, want := binary.LittleEndian.Uint16(pkt[end:]), CRC(pkt[:end]); got != want {
		return Packet{}, fmt.Errorf("%w: got %04x want %04x", ErrCRC, got, want)
	}
	body := unstuff(pkt[headerLen:end])
	p := Packet{ID: pkt[4], Instruction: body[0]}
	body = body[1:]
	if p.Instruction == InstStatus {
		if len(body) < 1 {
			return Packet{}, fmt.Errorf("%w: status without error byte", ErrBadPacket)
		}
		p.Error = body[0]
		body = body[1:]
	}
	p.Params = body
	return p, nil
}

func readParams(addr, length uint16) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint16(b[0:2], addr)
	binary.LittleEndian.PutUint16(b[2:4], length)
	return b[:]
}

func writeParams(addr uint16, data []byte) []byte {
	b := make([]byte, 2, 2+len(data))
	binary.LittleEndian.PutUint16(b, addr)
	return append(b, data...)
}
