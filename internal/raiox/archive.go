package raiox

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	ErrEntryNotFound = errors.New("csv entry not found in archive")
	ErrEmptyTable    = errors.New("csv entry has no header")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadArchive opens body as a zip archive held in memory and parses the
// entry whose base name matches csvName (case-insensitive) into a string
// typed dataframe. The detected delimiter is returned with it.
func ReadArchive(body []byte, csvName string) (dataframe.DataFrame, rune, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("open zip: %w", err)
	}
	var entry *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(path.Base(f.Name), csvName) {
			entry = f
			break
		}
	}
	if entry == nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("%w: %s", ErrEntryNotFound, csvName)
	}

	rc, err := entry.Open()
	if err != nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("read %s: %w", entry.Name, err)
	}
	return ParseCSV(raw)
}

// ParseCSV parses a delimited table. UTF-8 is assumed; input that is not
// valid UTF-8 is decoded as ISO-8859-1. The delimiter is whichever of ';'
// and ',' appears more often in the header line, and is returned so the
// caller can tell which number convention the file follows.
func ParseCSV(raw []byte) (dataframe.DataFrame, rune, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var src io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		src = transform.NewReader(src, charmap.ISO8859_1.NewDecoder())
	}

	delim := detectDelimiter(raw)
	r := csv.NewReader(src)
	r.Comma = delim
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return dataframe.DataFrame{}, 0, ErrEmptyTable
	}
	for i, name := range records[0] {
		records[0][i] = strings.TrimSpace(name)
	}

	if len(records) == 1 {
		cols := make([]series.Series, len(records[0]))
		for i, name := range records[0] {
			cols[i] = series.New([]string{}, series.String, name)
		}
		df := dataframe.New(cols...)
		return df, delim, df.Err
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, 0, fmt.Errorf("load records: %w", df.Err)
	}
	return df, delim, nil
}

func detectDelimiter(raw []byte) rune {
	header := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		header = raw[:i]
	}
	if bytes.Count(header, []byte{';'}) > bytes.Count(header, []byte{','}) {
		return ';'
	}
	return ','
}
