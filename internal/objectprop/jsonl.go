package objectprop

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLine bounds one JSONL record.
const maxLine = 16 << 20

// JSONLReader reads one JSON object per line. Empty lines are skipped; a
// line that is not a JSON object stops the import with its line number.
type JSONLReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLReader returns a RowReader over r.
func NewJSONLReader(r io.Reader) *JSONLReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
	return &JSONLReader{scanner: scanner}
}

// Read returns the next row, or io.EOF.
func (r *JSONLReader) Read() (Row, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		if row == nil {
			return nil, fmt.Errorf("line %d: not a JSON object", r.line)
		}
		return row, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}
