// Package sheets loads XLSX worksheets as header-keyed rows and filters them
// with a small comparison language.
package sheets

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrSheetNotFound  = errors.New("sheets: worksheet not found")
	ErrColumnNotFound = errors.New("sheets: column not found")
)

// Row maps normalized header keys to cell text.
type Row map[string]string

type Table struct {
	Sheet   string
	Headers []string // normalized; "" for headers that normalize to nothing
	Rows    []Row
}

// Open reads a worksheet; an empty sheet name selects the first one.
func Open(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheets: open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, ErrSheetNotFound
		}
		sheet = list[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", sheet, err)
	}
	return FromRows(sheet, raw), nil
}

// FromRows builds a table from raw cell rows; the first row is the header.
func FromRows(sheet string, raw [][]string) *Table {
	t := &Table{Sheet: sheet}
	if len(raw) == 0 {
		return t
	}
	for _, h := range raw[0] {
		t.Headers = append(t.Headers, NormalizeHeader(h))
	}
	for _, cells := range raw[1:] {
		row := Row{}
		for i, h := range t.Headers {
			if h == "" {
				continue
			}
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

var nonKey = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeHeader turns "Código (SKU)" into "codigo_sku".
func NormalizeHeader(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	key := nonKey.ReplaceAllString(strings.ToLower(stripped), "_")
	return strings.Trim(key, "_")
}

var columnLetters = regexp.MustCompile(`^[A-Za-z]{1,3}$`)

// Column resolves a header name or a column letter to a row key. Header
// names win over letters, so a column titled "Id" is not read as column ID.
func (t *Table) Column(ref string) (string, error) {
	key := NormalizeHeader(ref)
	for _, h := range t.Headers {
		if key != "" && h == key {
			return h, nil
		}
	}
	if columnLetters.MatchString(ref) {
		n, err := excelize.ColumnNameToNumber(strings.ToUpper(ref))
		if err == nil && n <= len(t.Headers) && t.Headers[n-1] != "" {
			return t.Headers[n-1], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrColumnNotFound, ref)
}

// Filter returns the rows whose column value satisfies expr.
func (t *Table) Filter(column, expr string) ([]Row, error) {
	key, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	pred, err := ParseExpr(expr)
	if err != nil {
		return nil, err
	}
	out := []Row{}
	for _, r := range t.Rows {
		if pred(r[key]) {
			out = append(out, r)
		}
	}
	return out, nil
}
