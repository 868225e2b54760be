package dxl

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestEncodePing(t *testing.T) {
	// Example packet from the protocol 2.0 manual.
	want := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01, 0x19, 0x4E}
	if diff := cmp.Diff(Encode(1, InstPing, nil), want); diff != "" {
		t.Errorf("ping packet: got(-)/want(+):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, test := range []struct {
		name string
		pkt  []byte
		want Packet
	}{
		{"write", Encode(3, InstWrite, []byte{64, 0, 1}), Packet{ID: 3, Instruction: InstWrite, Params: []byte{64, 0, 1}}},
		{"stuffed", Encode(3, InstWrite, []byte{0xFF, 0xFF, 0xFD, 0x10}), Packet{ID: 3, Instruction: InstWrite, Params: []byte{0xFF, 0xFF, 0xFD, 0x10}}},
		{"status", EncodeStatus(7, 0x80, []byte{1, 2}), Packet{ID: 7, Instruction: InstStatus, Error: 0x80, Params: []byte{1, 2}}},
		{"empty status", EncodeStatus(7, 0, nil), Packet{ID: 7, Instruction: InstStatus}},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Decode(test.pkt)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(got, test.want, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("unexpected packet: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestStuffing(t *testing.T) {
	pkt := Encode(1, InstWrite, []byte{0xFF, 0xFF, 0xFD})
	if !bytes.Contains(pkt[headerLen:], []byte{0xFF, 0xFF, 0xFD, 0xFD}) {
		t.Errorf("payload not stuffed: % x", pkt)
	}
	if got, want := int(pkt[5]), 1+4+2; got != want {
		t.Errorf("length byte: got %d, want %d", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	good := Encode(1, InstWrite, []byte{1, 2, 3})

	badCRC := append([]byte(nil), good...)
	badCRC[len(badCRC)-1] ^= 0xFF

	short := good[:len(good)-1]

	for _, test := range []struct {
		name string
		pkt  []byte
		want error
	}{
		{"crc", badCRC, ErrCRC},
		{"short", short, ErrBadPacket},
		{"no header", []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ErrBadPacket},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Decode(test.pkt); !errors.Is(err, test.want) {
				t.Errorf("Decode: got %v, want %v", err, test.want)
			}
		})
	}
}

func TestFrame(t *testing.T) {
	pkt := EncodeStatus(1, 0, []byte{9})
	buf := append([]byte{0x00, 0x42}, pkt...)

	skip, n, err := Frame(buf)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if skip != 2 || n != len(pkt) {
		t.Errorf("Frame = (%d, %d), want (2, %d)", skip, n, len(pkt))
	}

	// Incomplete packet: wait for more.
	skip, n, err = Frame(pkt[:len(pkt)-1])
	if err != nil || skip != 0 || n != 0 {
		t.Errorf("Frame(partial) = (%d, %d, %v), want (0, 0, nil)", skip, n, err)
	}
}
