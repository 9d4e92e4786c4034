package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVSource reads leads from a delimited text file with a header row.
type CSVSource struct {
	Path string
	// Charset names the file encoding, e.g. "windows-1252". Empty means UTF-8.
	Charset string
	// Delimiter defaults to ',' or ';' when the header contains more semicolons.
	Delimiter rune
	// Location interprets dates without a zone. Nil means UTC.
	Location *time.Location
}

func (s *CSVSource) Name() string { return "csv:" + filepath.Base(s.Path) }

func (s *CSVSource) Fetch(ctx context.Context) (Batch, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return Batch{}, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	r, err := decodeCharset(f, s.Charset)
	if err != nil {
		return Batch{}, err
	}
	br := bufio.NewReader(r)
	skipBOM(br)

	delim := s.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return Batch{}, eris.Wrap(err, "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Batch{}, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}
	return rowsToBatch(s.Name(), rows, s.Location)
}

// XLSXSource reads leads from a spreadsheet whose first row is the header.
type XLSXSource struct {
	Path string
	// Sheet selects a sheet by name. Empty means the first sheet.
	Sheet    string
	Location *time.Location
}

func (s *XLSXSource) Name() string { return "xlsx:" + filepath.Base(s.Path) }

func (s *XLSXSource) Fetch(ctx context.Context) (Batch, error) {
	f, err := xlsx.OpenFile(s.Path)
	if err != nil {
		return Batch{}, eris.Wrap(err, "xlsx: open file")
	}

	var sheet *xlsx.Sheet
	switch {
	case s.Sheet != "":
		var ok bool
		if sheet, ok = f.Sheet[s.Sheet]; !ok {
			return Batch{}, eris.Errorf("xlsx: sheet %q not found", s.Sheet)
		}
	case len(f.Sheets) == 0:
		return Batch{}, eris.New("xlsx: workbook has no sheets")
	default:
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return Batch{}, eris.Wrap(err, "xlsx: context cancelled")
		}
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rowsToBatch(s.Name(), rows, s.Location)
}

// rowsToBatch maps rows[1:] through the header in rows[0]. Blank rows are skipped.
func rowsToBatch(source string, rows [][]string, loc *time.Location) (Batch, error) {
	if len(rows) == 0 {
		return Batch{}, eris.Errorf("%s: file is empty", source)
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return Batch{}, eris.Wrap(err, source)
	}
	if loc == nil {
		loc = time.UTC
	}

	var b Batch
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		lead, err := leadFromRow(h, row, loc)
		if err != nil {
			b.Rejected = append(b.Rejected, RowError{Source: source, Row: i + 2, Err: err.Error()})
			continue
		}
		b.add(lead, i+2)
	}
	return b, nil
}

func decodeCharset(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

func skipBOM(br *bufio.Reader) {
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}
}

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas, as spreadsheet exports in pt-BR locales do.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(string(line), ";") > strings.Count(string(line), ",") {
		return ';'
	}
	return ','
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
