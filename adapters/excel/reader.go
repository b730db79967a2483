package excel

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/xuri/excelize/v2"
)

// DataReader reads CSV, TSV, delimited text and XLSX uploads into typed datasets
type DataReader struct {
	logger *internal.Logger
}

var _ ports.DatasetReader = (*DataReader)(nil)

// NewDataReader creates a reader logging through logger (nil uses the default logger)
func NewDataReader(logger *internal.Logger) *DataReader {
	return &DataReader{logger: internal.OrDefault(logger)}
}

// ReadDataset reads a table using the default reader
func ReadDataset(name string, r io.Reader) (*dataset.Dataset, error) {
	return NewDataReader(nil).Read(name, r)
}

// ReadFile opens path and reads it as a table
func (dr *DataReader) ReadFile(path string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return dr.Read(filepath.Base(path), f)
}

// Read dispatches on the extension of name
func (dr *DataReader) Read(name string, r io.Reader) (*dataset.Dataset, error) {
	ext := strings.ToLower(filepath.Ext(name))
	dr.logger.Debug("[DataReader] Starting to read %s (%s)", name, ext)

	startTime := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch ext {
	case ".xlsx":
		rows, err = readExcelRows(name, r)
	case ".csv":
		rows, err = readDelimitedRows(name, r, ',', false)
	case ".tsv":
		rows, err = readDelimitedRows(name, r, '\t', false)
	case ".txt":
		rows, err = readDelimitedRows(name, r, 0, true)
	default:
		return nil, core.NewUnsupportedFileFormatError(name, "only .csv, .tsv, .txt and .xlsx files are supported")
	}
	if err != nil {
		return nil, err
	}

	ds, err := buildDataset(name, rows)
	if err != nil {
		return nil, err
	}
	dr.logger.Info("[DataReader] %s read in %.2fms (%d columns, %d rows)",
		name, float64(time.Since(startTime).Nanoseconds())/1e6, len(ds.ColumnNames()), ds.Rows())
	return ds, nil
}

// ReadDataURL decodes a data URL upload and reads it as a table
func (dr *DataReader) ReadDataURL(name, dataURL string) (*dataset.Dataset, error) {
	_, payload, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, core.NewUnsupportedFileFormatError(name, err.Error())
	}
	return dr.Read(name, bytes.NewReader(payload))
}

// DecodeDataURL splits a "data:<mime>;base64,<payload>" string into its mime type and decoded bytes
func DecodeDataURL(dataURL string) (string, []byte, error) {
	header, encoded, found := strings.Cut(dataURL, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return "", nil, errors.New("not a data URL")
	}
	meta := strings.TrimPrefix(header, "data:")
	mime, params, _ := strings.Cut(meta, ";")
	if !strings.Contains(";"+params, ";base64") {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mime, payload, nil
}

func readExcelRows(name string, r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, core.NewUnsupportedFileFormatError(name, fmt.Sprintf("failed to open workbook: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, core.NewUnsupportedFileFormatError(name, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, core.NewUnsupportedFileFormatError(name, fmt.Sprintf("failed to read sheet %s: %v", sheets[0], err))
	}

	// GetRows drops trailing empty cells, so short rows are padded to the header width
	if len(rows) > 0 {
		width := len(rows[0])
		for i := 1; i < len(rows); i++ {
			if len(rows[i]) > width {
				if hasContent(rows[i][width:]) {
					return nil, core.NewUnsupportedFileFormatError(name, fmt.Sprintf("row %d has %d cells, header has %d", i+1, len(rows[i]), width))
				}
				rows[i] = rows[i][:width]
			}
			for len(rows[i]) < width {
				rows[i] = append(rows[i], "")
			}
		}
	}
	return rows, nil
}

func readDelimitedRows(name string, r io.Reader, delim rune, sniff bool) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if bytes.IndexByte(raw, 0) >= 0 || !utf8.Valid(raw) {
		return nil, core.NewUnsupportedFileFormatError(name, "file is binary, not delimited text")
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	if sniff {
		delim = sniffDelimiter(raw)
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = delim
	reader.FieldsPerRecord = 0
	rows, err := reader.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
			return nil, core.NewUnsupportedFileFormatError(name, fmt.Sprintf("ragged rows: line %d has a different number of fields than the header", perr.Line))
		}
		return nil, core.NewUnsupportedFileFormatError(name, err.Error())
	}
	return rows, nil
}

// sniffDelimiter picks the candidate occurring most often in the header line
func sniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	best, bestCount := ',', 0
	for _, cand := range []rune{',', '\t', ';', '|'} {
		if n := bytes.Count(line, []byte(string(cand))); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}

func buildDataset(name string, rows [][]string) (*dataset.Dataset, error) {
	if len(rows) < 2 {
		return nil, core.NewUnsupportedFileFormatError(name, "file must have a header row and at least one data row")
	}

	header := rows[0]
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, core.NewUnsupportedFileFormatError(name, fmt.Sprintf("column %d has an empty header", i+1))
		}
		if prev, dup := seen[h]; dup {
			return nil, core.NewUnsupportedFileFormatError(name, fmt.Sprintf("duplicate header %q in columns %d and %d", h, prev+1, i+1))
		}
		seen[h] = i
		header[i] = h
	}

	body := rows[1:]
	cols := make([]*dataset.Column, len(header))
	cells := make([]string, len(body))
	for j, h := range header {
		for i, row := range body {
			cells[i] = strings.TrimSpace(row[j])
		}
		cols[j] = CoerceColumn(h, cells)
	}

	ds, err := dataset.New(strings.TrimSuffix(name, filepath.Ext(name)), cols...)
	if err != nil {
		return nil, core.NewUnsupportedFileFormatError(name, err.Error())
	}
	return ds, nil
}

func hasContent(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return true
		}
	}
	return false
}
