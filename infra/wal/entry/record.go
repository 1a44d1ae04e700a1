package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

type RecordType uint8

const (
	RecordEvent RecordType = iota + 1
)

const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4
	// maxPayload bounds a single frame so a corrupt length cannot force a
	// huge allocation.
	maxPayload = 1 << 20
)

var (
	ErrCorruptRecord = errors.New("journal: corrupt record")
	ErrNonMonotonic  = errors.New("journal: non-monotonic sequence")
)

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

func checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// appendFrame encodes r onto dst.
func appendFrame(dst []byte, r *Record) []byte {
	start := len(dst)
	var hdr [headerSize]byte
	hdr[0] = byte(r.Type)
	binary.BigEndian.PutUint64(hdr[1:9], r.Seq)
	binary.BigEndian.PutUint64(hdr[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(hdr[17:21], uint32(len(r.Data)))

	dst = append(dst, hdr[:]...)
	dst = append(dst, r.Data...)
	return binary.BigEndian.AppendUint32(dst, checksum(dst[start:]))
}

// readRecord decodes one frame. A clean end of input yields io.EOF; a frame
// cut short yields io.ErrUnexpectedEOF.
func readRecord(r io.Reader) (*Record, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	l := binary.BigEndian.Uint32(hdr[17:21])
	if l > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorruptRecord, l)
	}

	body := make([]byte, headerSize+int(l)+crcSize)
	copy(body, hdr[:])
	if _, err := io.ReadFull(r, body[headerSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	end := headerSize + int(l)
	if checksum(body[:end]) != binary.BigEndian.Uint32(body[end:]) {
		return nil, fmt.Errorf("%w: crc mismatch at seq %d", ErrCorruptRecord, binary.BigEndian.Uint64(hdr[1:9]))
	}

	return &Record{
		Type: RecordType(hdr[0]),
		Seq:  binary.BigEndian.Uint64(hdr[1:9]),
		Time: int64(binary.BigEndian.Uint64(hdr[9:17])),
		Data: body[headerSize:end],
	}, nil
}
