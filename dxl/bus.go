package dxl

import (
	"encoding/binary"
	"fmt"
	"sync"
)

type bulkReadEntry struct {
	id     byte
	addr   uint16
	length uint16
}

type bulkWriteEntry struct {
	id   byte
	addr uint16
	data []byte
}

// Bus issues protocol 2.0 transactions on a single half-duplex Conn.
// It keeps one bulk read group, registered once, and one bulk write group,
// rebuilt every cycle.
type Bus struct {
	mu     sync.Mutex
	conn   Conn
	closed bool

	reads    []bulkReadEntry
	readData map[byte][]byte
	writes   []bulkWriteEntry
}

func NewBus(conn Conn) *Bus {
	return &Bus{conn: conn, readData: make(map[byte][]byte)}
}

// Close stops the bus from issuing further transactions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Bus) transact(op string, req []byte, responses int) ([]Packet, error) {
	if b.closed {
		return nil, ErrBusClosed
	}
	raw, err := b.conn.Transact(req, responses)
	if err != nil {
		return nil, &CommError{Op: op, Err: err}
	}
	pkts := make([]Packet, 0, len(raw))
	for _, r := range raw {
		p, err := Decode(r)
		if err != nil {
			return nil, &CommError{Op: op, Err: err}
		}
		if p.Instruction != InstStatus {
			return nil, &CommError{Op: op, Err: fmt.Errorf("%w: instruction %#x in response", ErrBadPacket, p.Instruction)}
		}
		if err := statusError(p.ID, p.Error); err != nil {
			return nil, err
		}
		pkts = append(pkts, p)
	}
	return pkts, nil
}

// Ping checks that a device answers.
func (b *Bus) Ping(id byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.transact("ping", Encode(id, InstPing, nil), 1)
	return err
}

// Write writes data at addr and waits for the status packet.
func (b *Bus) Write(id byte, addr uint16, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.transact("write", Encode(id, InstWrite, writeParams(addr, data)), 1)
	return err
}

func (b *Bus) Write1(id byte, addr uint16, v uint8) error {
	return b.Write(id, addr, []byte{v})
}

func (b *Bus) Write2(id byte, addr uint16, v uint16) error {
	var data [2]byte
	binary.LittleEndian.PutUint16(data[:], v)
	return b.Write(id, addr, data[:])
}

// Read reads length bytes at addr.
func (b *Bus) Read(id byte, addr, length uint16) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pkts, err := b.transact("read", Encode(id, InstRead, readParams(addr, length)), 1)
	if err != nil {
		return nil, err
	}
	if p := pkts[0]; p.ID != id || len(p.Params) != int(length) {
		return nil, &CommError{Op: "read", Err: fmt.Errorf("%w: device %d returned %d bytes", ErrBadPacket, p.ID, len(p.Params))}
	}
	return pkts[0].Params, nil
}

// ClearBulkRead forgets every registered bulk read window.
func (b *Bus) ClearBulkRead() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = nil
	b.readData = make(map[byte][]byte)
}

// AddBulkRead registers the window a device reports on every bulk read.
// A device may only have one window.
func (b *Bus) AddBulkRead(id byte, addr, length uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.reads {
		if e.id == id {
			return fmt.Errorf("device %d already registered for bulk read", id)
		}
	}
	b.reads = append(b.reads, bulkReadEntry{id: id, addr: addr, length: length})
	return nil
}

// BulkRead reads every registered window in one transaction. On failure the
// results of the previous bulk read are discarded.
func (b *Bus) BulkRead() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readData = make(map[byte][]byte)
	if len(b.reads) == 0 {
		return nil
	}
	params := make([]byte, 0, 5*len(b.reads))
	for _, e := range b.reads {
		params = append(params, e.id)
		params = append(params, readParams(e.addr, e.length)...)
	}
	pkts, err := b.transact("bulk read", Encode(BroadcastID, InstBulkRead, params), len(b.reads))
	if err != nil {
		return err
	}
	data := make(map[byte][]byte, len(pkts))
	for _, p := range pkts {
		data[p.ID] = p.Params
	}
	for _, e := range b.reads {
		if len(data[e.id]) != int(e.length) {
			return &CommError{Op: "bulk read", Err: fmt.Errorf("%w: device %d returned %d of %d bytes", ErrBadPacket, e.id, len(data[e.id]), e.length)}
		}
	}
	b.readData = data
	return nil
}

// BulkReadData returns length bytes at addr from the last bulk read. The
// range must lie inside the device's registered window.
func (b *Bus) BulkReadData(id byte, addr, length uint16) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.readData[id]
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, ErrNoData)
	}
	for _, e := range b.reads {
		if e.id != id {
			continue
		}
		if addr < e.addr || addr+length > e.addr+e.length {
			return nil, fmt.Errorf("device %d: range %d+%d outside window %d+%d", id, addr, length, e.addr, e.length)
		}
		off := addr - e.addr
		return append([]byte(nil), data[off:off+length]...), nil
	}
	return nil, fmt.Errorf("device %d: %w", id, ErrNoData)
}

// ClearBulkWrite empties the bulk write group.
func (b *Bus) ClearBulkWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = b.writes[:0]
}

// AddBulkWrite queues data for a device in the bulk write group.
func (b *Bus) AddBulkWrite(id byte, addr uint16, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.writes {
		if e.id == id {
			return fmt.Errorf("device %d already in bulk write", id)
		}
	}
	b.writes = append(b.writes, bulkWriteEntry{id: id, addr: addr, data: append([]byte(nil), data...)})
	return nil
}

// BulkWrite sends the bulk write group. Devices do not answer.
func (b *Bus) BulkWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.writes) == 0 {
		return nil
	}
	var params []byte
	for _, e := range b.writes {
		params = append(params, e.id)
		params = append(params, readParams(e.addr, uint16(len(e.data)))...)
		params = append(params, e.data...)
	}
	_, err := b.transact("bulk write", Encode(BroadcastID, InstBulkWrite, params), 0)
	return err
}
