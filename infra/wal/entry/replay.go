package entry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

type ReplayHandler func(*Record) error

// Replay feeds every record of dir to fn in sequence order. Sequences must
// strictly increase across all segments. A frame cut short at the very end
// of the last segment is a torn write and ends the replay cleanly.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	seen := false
	for i, path := range files {
		lastSegment := i == len(files)-1
		err := replaySegment(path, lastSegment, func(rec *Record) error {
			if seen && rec.Seq <= lastSeq {
				return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, rec.Seq, lastSeq)
			}
			seen = true
			lastSeq = rec.Seq
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, last bool, fn ReplayHandler) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF) && last:
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w: truncated frame in %s", ErrCorruptRecord, path)
		default:
			return fmt.Errorf("%s: %w", path, err)
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
}
