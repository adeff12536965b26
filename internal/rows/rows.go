// Package rows extracts (source, destination) key pairs from a delimited file.
package rows

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/agentstation/itemtype/pkg/errors"
)

// Row is one data row of the input file. Index is 0-based over data rows,
// header excluded.
type Row struct {
	Index          int    `json:"row" yaml:"row"`
	SourceKey      string `json:"source_key" yaml:"source_key"`
	DestinationKey string `json:"destination_key" yaml:"destination_key"`
}

// Extract opens path and returns its rows in file order. A byte-order mark
// is tolerated. Cell values are passed through unchanged, empty ones included,
// and a stray quote inside a cell is kept as part of the value. Input that is
// not valid UTF-8 (after BOM handling) fails with an IOError.
func Extract(path, sourceColumn, destColumn string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer func() { _ = f.Close() }()

	out, err := Read(f, sourceColumn, destColumn)
	if err != nil {
		var ioErr *errors.IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
		}
		return nil, err
	}
	return out, nil
}

// Read is Extract over an arbitrary reader.
func Read(r io.Reader, sourceColumn, destColumn string) ([]Row, error) {
	// BOMOverride switches to UTF-16 when a UTF-16 BOM is present and strips a
	// UTF-8 BOM; without a BOM the input is read as UTF-8. The validator
	// rejects invalid UTF-8 instead of replacing it with U+FFFD.
	decoder := transform.Chain(unicode.BOMOverride(transform.Nop), encoding.UTF8Validator)
	reader := csv.NewReader(transform.NewReader(r, decoder))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewConfigError("csv", "file is empty, expected a header row", nil)
	}
	if err != nil {
		return nil, wrapReadError(err)
	}

	srcIdx, dstIdx := indexOf(header, sourceColumn), indexOf(header, destColumn)
	if srcIdx < 0 {
		return nil, missingColumn("source", sourceColumn, header)
	}
	if dstIdx < 0 {
		return nil, missingColumn("destination", destColumn, header)
	}

	var out []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapReadError(err)
		}
		out = append(out, Row{
			Index:          len(out),
			SourceKey:      cell(record, srcIdx),
			DestinationKey: cell(record, dstIdx),
		})
	}
	return out, nil
}

// indexOf returns the position of name in header, or -1. A repeated name
// resolves to its last column.
func indexOf(header []string, name string) int {
	for i := len(header) - 1; i >= 0; i-- {
		if header[i] == name {
			return i
		}
	}
	return -1
}

// cell returns record[i], or "" for a short row.
func cell(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

func missingColumn(role, name string, header []string) error {
	return errors.NewConfigError("csv",
		"unable to find the "+role+" column \""+name+"\" in the CSV header ["+strings.Join(header, ", ")+"]", nil)
}

func wrapReadError(err error) error {
	return errors.WrapIO("read", "", err)
}
