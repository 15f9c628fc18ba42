package parse

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultDelimiter = ','
	DefaultQuote     = '"'
)

// Decodes delimited text into rows of fields. Quoting follows RFC
// 4180: quoted fields may hold delimiters, doubled quotes and line
// breaks.
type Decoder struct {
	text      string
	delimiter rune
}

func NewDecoder(text string, delimiter rune, quote rune) (*Decoder, error) {
	if quote != DefaultQuote {
		return nil, fmt.Errorf("unsupported quote character %q", quote)
	}
	if delimiter == quote || delimiter == '\r' || delimiter == '\n' {
		return nil, fmt.Errorf("invalid delimiter %q", delimiter)
	}
	return &Decoder{text: text, delimiter: delimiter}, nil
}

// Returns a cursor positioned before the first row. Every call starts
// over from the beginning of the text.
func (d *Decoder) Rows() *Rows {
	r := csv.NewReader(strings.NewReader(d.text))
	r.Comma = d.delimiter
	r.FieldsPerRecord = -1
	return &Rows{r: r}
}

// Cursor over decoded rows. Usage mirrors sql.Rows:
//
//	rows := dec.Rows()
//	for rows.Next() {
//		row := rows.Row()
//	}
//	if err := rows.Err(); err != nil {
//		...
//	}
type Rows struct {
	r    *csv.Reader
	row  []string
	line int
	err  error
	done bool
}

func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	row, err := r.r.Read()
	if err == io.EOF {
		r.done = true
		r.row = nil
		return false
	}
	if err != nil {
		r.done = true
		r.row = nil
		line := r.line + 1
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			line = pe.Line
		}
		r.err = &DecodeError{Line: line, Err: errors.Wrap(err, "reading csv")}
		return false
	}

	r.row = row
	r.line, _ = r.r.FieldPos(0)
	return true
}

// Fields of the current row.
func (r *Rows) Row() []string {
	return r.row
}

// Line number (1-based) where the current row starts.
func (r *Rows) Line() int {
	return r.line
}

func (r *Rows) Err() error {
	return r.err
}

// Consumes the header row. Returns false if there is no header,
// either because the text is empty or decoding failed.
func (r *Rows) SkipHeader() bool {
	return r.Next()
}
