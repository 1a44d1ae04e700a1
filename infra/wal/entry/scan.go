package entry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// maxSeqInSegment walks frame headers of a segment and returns the highest
// sequence found. ok is false for a segment with no complete header.
func maxSeqInSegment(path string) (max uint64, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var hdr [headerSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, ok, nil
			}
			return max, ok, err
		}

		if seq := binary.BigEndian.Uint64(hdr[1:9]); !ok || seq > max {
			max = seq
		}
		ok = true

		// payload + crc
		skip := int(binary.BigEndian.Uint32(hdr[17:21])) + crcSize
		if _, err := r.Discard(skip); err != nil {
			if err == io.EOF {
				return max, ok, nil
			}
			return max, ok, err
		}
	}
}

// repairTail reads every frame of the segment at path, truncating it after
// the last complete frame when the file ends mid-frame. It returns the
// highest sequence kept.
func repairTail(path string) (max uint64, ok bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var good int64
	for {
		rec, err := readRecord(r)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return max, ok, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			if err := f.Truncate(good); err != nil {
				return max, ok, err
			}
			return max, ok, f.Sync()
		default:
			return max, ok, err
		}

		good += int64(headerSize + len(rec.Data) + crcSize)
		if !ok || rec.Seq > max {
			max = rec.Seq
		}
		ok = true
	}
}
