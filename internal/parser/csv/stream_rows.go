// Package csv streams delimited files into rows aligned to a target column
// order. The seed loader uses it to read the public flight dataset exports.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"flightdw/internal/config"
	"flightdw/internal/parser"
)

// Row is one parsed record. V is aligned to the requested columns; cells
// missing from the record or empty after trimming are nil. Line is the
// 1-based line number in the input, header included.
type Row = parser.Row

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", encoding)
	}
}

// StreamRows reads CSV from src and sends one Row per record to out,
// aligned to columns. Column names resolve against the header: headers are
// trimmed, the first one is BOM-stripped, then mapped through the
// "header_map" option or lowered to snake_case.
//
// Recognized options: has_header (true), comma (","), trim_space (true),
// lazy_quotes (false), fields_per_record (0 = variable), header_map,
// encoding ("utf-8", "latin1", "windows-1252").
//
// Malformed records are reported through onErr and skipped; only header or
// I/O failures end the stream with an error. The caller owns closing out.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	var line int

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")
	lazy := opt.Bool("lazy_quotes", false)
	fieldsPer := opt.Int("fields_per_record", 0)

	r, err := decodeReader(src, opt.String("encoding", ""))
	if err != nil {
		return err
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	if fieldsPer != 0 {
		cr.FieldsPerRecord = fieldsPer
	} else {
		cr.FieldsPerRecord = -1
	}

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if hasHeader {
		hdr, err := readRec()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			h = strings.TrimSpace(h)
			if i == 0 {
				h = strings.TrimPrefix(h, "\uFEFF")
			}
			if mapped, ok := hm[h]; ok {
				h = mapped
			} else {
				h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
			}
			srcToIdx[h] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := Row{V: make([]any, len(columns)), Line: line}
		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				continue
			}
			v := rec[si]
			if trim {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Collect runs StreamRows to completion and returns all rows. Intended for
// modest inputs like the airline and airport reference files.
func Collect(ctx context.Context, src io.ReadCloser, columns []string, opt config.Options, onErr func(line int, err error)) ([]Row, error) {
	out := make(chan Row, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- StreamRows(ctx, src, columns, opt, out, onErr)
		close(out)
	}()

	var rows []Row
	for r := range out {
		rows = append(rows, r)
	}
	return rows, <-errCh
}
