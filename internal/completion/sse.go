package completion

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize bounds a single SSE event.
const maxEventSize = 1 << 20

// sseReader splits a Server-Sent Events body into data payloads.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the data of the next event. Multi-line data is joined with
// newlines. Comments, ids and event names are ignored. It returns io.EOF
// when the body ends cleanly between events.
func (s *sseReader) next() ([]byte, error) {
	var data [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF && len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			payload := bytes.TrimPrefix(line[5:], []byte(" "))
			size += len(payload)
			if size > maxEventSize {
				return nil, errEventTooLarge
			}
			data = append(data, payload)
		}

		// A final line without a trailing newline.
		if err != nil {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			return nil, err
		}
	}
}
