package configcsv

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parsed is the outcome of reading one plan file.
type Parsed struct {
	Rows   []Row      `json:"rows"`
	Errors []RowError `json:"errors"`
}

// Valid returns the rows without errors.
func (p Parsed) Valid() []Row {
	bad := make(map[int]bool, len(p.Errors))
	for _, e := range p.Errors {
		bad[e.RowNumber] = true
	}

	out := make([]Row, 0, len(p.Rows))

	for _, r := range p.Rows {
		if !bad[r.RowNumber] {
			out = append(out, r)
		}
	}

	return out
}

// Read parses a .csv or .xlsx plan file.
func Read(fileName string, data []byte) (Parsed, error) {
	var (
		records [][]string
		lines   []int
		err     error
	)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		records, lines, err = readCSV(data)
	case ".xlsx":
		records, lines, err = readXLSX(data)
	default:
		return Parsed{}, pkgerrors.Wrapf(ErrUnsupportedFile, "%q", fileName)
	}

	if err != nil {
		return Parsed{}, err
	}

	return build(records, lines), nil
}

// decodeText strips a BOM and falls back to GBK for files saved by legacy spreadsheet tools.
func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}

	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "decode plan as GBK")
	}

	return out, nil
}

func readCSV(data []byte) ([][]string, []int, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, nil, err
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)

	for {
		rec, err := r.Read()
		if err == io.EOF { //nolint:errorlint
			break
		}

		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "read csv plan")
		}

		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}

	return records, lines, nil
}

func readXLSX(data []byte) ([][]string, []int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "open xlsx plan")
	}

	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, pkgerrors.Wrapf(err, "read sheet %q", sheets[0])
	}

	lines := make([]int, len(records))
	for i := range records {
		lines[i] = i + 1
	}

	return records, lines, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}

// build maps records onto the header row and validates each data row.
func build(records [][]string, lines []int) Parsed {
	out := Parsed{Rows: []Row{}, Errors: []RowError{}}

	if len(records) == 0 {
		return out
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	for i := 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}

		cells := make(map[string]string, len(header))

		for j, key := range header {
			if key != "" && j < len(rec) {
				cells[key] = rec[j]
			}
		}

		row, parseErrs := Normalize(cells, lines[i])
		out.Rows = append(out.Rows, row)

		if errs := append(parseErrs, Validate(row)...); len(errs) > 0 {
			out.Errors = append(out.Errors, RowError{RowNumber: row.RowNumber, Errors: errs})
		}
	}

	return out
}
