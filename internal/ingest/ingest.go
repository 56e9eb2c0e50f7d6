// Package ingest turns raw delimited text into typed contact rows.
//
// The parser is deliberately small: header line plus data rows, quote-aware
// field splitting, and a tolerant policy for ragged rows (dropped with a
// warning, never fatal). Reading the raw text off disk or out of an upload is
// the caller's job.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/afshinator/BatchSMS/internal/model"
	"github.com/afshinator/BatchSMS/pkg/logger"
)

// ErrMalformedInput is returned when the input is empty or cannot yield at
// least a header line. Anything less broken than that parses.
var ErrMalformedInput = errors.New("malformed csv input")

// Column names the workflow extracts contacts from.
const (
	ColumnFirstName     = "First Name"
	ColumnMobilePhone   = "Mobile Phone"
	ColumnPriorityPhone = "Priority Phone"
	ColumnFileName      = "File Name"
)

// ContactColumns are exempt from numeric coercion: a phone number or a
// numeric-looking name must survive as an opaque string (leading zeros
// included).
var ContactColumns = []string{
	ColumnFirstName,
	ColumnMobilePhone,
	ColumnPriorityPhone,
	ColumnFileName,
}

type Options struct {
	Delimiter      string
	SkipEmptyLines bool
	TrimHeaders    bool
	TrimValues     bool
	// StringColumns lists header names whose values are never coerced to
	// numbers regardless of shape.
	StringColumns []string
}

func DefaultOptions() Options {
	return Options{
		Delimiter:      ",",
		SkipEmptyLines: true,
		TrimHeaders:    true,
		TrimValues:     true,
		StringColumns:  ContactColumns,
	}
}

// Row is one parsed record keyed by header name. Values are string or
// float64 depending on the coercion rules.
type Row map[string]any

// String returns the named field rendered as a string. Numeric values are
// formatted without an exponent; missing fields come back empty.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Document is the result of one parse: ordered rows plus bookkeeping about
// what was dropped on the way in.
type Document struct {
	FileName    string
	Headers     []string
	Rows        []Row
	SkippedRows int
}

// Contacts maps the document's rows onto typed contact records. Columns the
// document does not carry come back as empty fields.
func (d *Document) Contacts() []model.ContactRow {
	contacts := make([]model.ContactRow, 0, len(d.Rows))
	for _, row := range d.Rows {
		contacts = append(contacts, model.ContactRow{
			FirstName:     row.String(ColumnFirstName),
			MobilePhone:   row.String(ColumnMobilePhone),
			PriorityPhone: row.String(ColumnPriorityPhone),
			FileName:      row.String(ColumnFileName),
		})
	}
	return contacts
}

// Parse splits text into a header row and data rows. A data row whose field
// count does not match the header is dropped and counted, not fatal. Only
// empty or headerless input fails.
func Parse(text string, fileName string, opts Options) (*Document, error) {
	if opts.Delimiter == "" {
		opts.Delimiter = ","
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedInput)
	}

	lines := make([]string, 0, 64)
	for _, line := range strings.Split(text, "\n") {
		if opts.SkipEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no header line", ErrMalformedInput)
	}

	headers := splitLine(lines[0], opts.Delimiter)
	if opts.TrimHeaders {
		for i := range headers {
			headers[i] = strings.TrimSpace(headers[i])
		}
	}

	stringCols := make(map[string]bool, len(opts.StringColumns))
	for _, c := range opts.StringColumns {
		stringCols[c] = true
	}

	doc := &Document{
		FileName: fileName,
		Headers:  headers,
		Rows:     make([]Row, 0, len(lines)-1),
	}

	for i := 1; i < len(lines); i++ {
		values := splitLine(lines[i], opts.Delimiter)
		if len(values) != len(headers) {
			logger.Warn("ingest: dropping row with mismatched column count",
				"file", fileName, "line", i+1, "got", len(values), "want", len(headers))
			doc.SkippedRows++
			continue
		}

		row := make(Row, len(headers))
		for j, header := range headers {
			value := values[j]
			if opts.TrimValues {
				value = strings.TrimSpace(value)
			}
			row[header] = coerce(value, stringCols[header])
		}
		doc.Rows = append(doc.Rows, row)
	}

	return doc, nil
}

// coerce converts a fully numeric value to float64 unless the column is
// exempt. Kept for compatibility with the data shapes downstream expects.
func coerce(value string, exempt bool) any {
	if exempt || value == "" {
		return value
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// splitLine splits one line on the delimiter with double-quote awareness: a
// delimiter inside quotes is literal, and "" inside a quoted field is an
// escaped quote.
func splitLine(line, delimiter string) []string {
	var (
		result  []string
		current strings.Builder
		quoted  bool
	)

	runes := []rune(line)
	delim := []rune(delimiter)[0]

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if quoted && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				quoted = !quoted
			}
		case ch == delim && !quoted:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	result = append(result, current.String())

	return result
}
