// Package source decodes institution disclosure files into raw rows.
// Discovery of the per-file payer/plan column groups is part of decoding;
// downstream code iterates whatever groups a file happens to declare.
package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gyeh/priceload/internal/model"
)

// Reader streams one institution's file. Next returns io.EOF after the last
// item; Modifiers is valid only after that.
type Reader interface {
	ReadHeader() (*model.Header, error)
	Next() (*model.Row, error)
	Modifiers() []model.ModifierRow
	RowNum() int64
	Close() error
}

// DecodeError marks a file whose structure cannot be parsed at all. It is
// fatal to the load; no rows are processed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Open picks a reader by file extension. Anything that is not .csv is
// treated as MRF JSON.
func Open(path string) (Reader, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return NewCSVReader(path)
	}
	return NewJSONReader(path)
}

// skipBOM discards a UTF-8 byte order mark if present.
func skipBOM(r interface {
	Peek(int) ([]byte, error)
	Discard(int) (int, error)
}) {
	bom, err := r.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		r.Discard(3)
	}
}
