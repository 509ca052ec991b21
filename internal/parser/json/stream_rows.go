// Package json streams JSON dataset exports into rows aligned to a target
// column order. It accepts the shapes the flight exports come in: a root
// array of objects, a stream of objects (JSONL), or an envelope object
// whose first array-of-objects field holds the records.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"flightdw/internal/config"
	"flightdw/internal/parser"
)

// StreamRows reads JSON from src and sends one Row per record object to
// out, aligned to columns. Object keys resolve against columns directly or
// through the "header_map" option (original key -> column name). Missing
// keys and JSON nulls yield nil cells.
//
// Malformed elements are reported through onErr and end the stream; the
// caller owns closing out.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- parser.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	// column name -> original key, for exports whose keys differ from the
	// target column names.
	keyFor := make(map[string]string, len(columns))
	for orig, col := range opt.StringMap("header_map") {
		keyFor[col] = orig
	}

	dec := json.NewDecoder(src)
	dec.UseNumber()

	var line int
	emit := func(obj map[string]any) error {
		line++
		row := parser.Row{V: make([]any, len(columns)), Line: line}
		for i, col := range columns {
			v, ok := obj[col]
			if !ok {
				v = obj[keyFor[col]]
			}
			row.V[i] = cellValue(v)
		}
		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return reportErr(onErr, line, fmt.Errorf("json: read first token: %w", err))
	}

	switch tok {
	case json.Delim('['):
		if err := streamObjects(ctx, dec, emit, onErr, &line); err != nil {
			return err
		}
		if _, err := dec.Token(); err != nil { // closing ']'
			return reportErr(onErr, line, fmt.Errorf("json: read array end: %w", err))
		}
		return streamConcatenated(dec, emit, onErr, &line)

	case json.Delim('{'):
		return streamEnvelope(ctx, dec, emit, onErr, &line)

	default:
		return reportErr(onErr, line, fmt.Errorf("json: root must be an object or array, got %v", tok))
	}
}

// streamObjects decodes array elements after '[' has been consumed. Null
// elements are skipped.
func streamObjects(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error, onErr func(int, error), line *int) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return reportErr(onErr, *line+1, fmt.Errorf("json: decode element: %w", err))
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return reportErr(onErr, *line+1, fmt.Errorf("json: element is %T, want object", raw))
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
	return nil
}

// streamEnvelope handles a root object: if its first array-valued field
// contains the records, stream them and ignore the remaining fields;
// otherwise treat the whole object as a single record.
func streamEnvelope(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error, onErr func(int, error), line *int) error {
	single := make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return reportErr(onErr, *line, fmt.Errorf("json: read envelope key: %w", err))
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return reportErr(onErr, *line, fmt.Errorf("json: read envelope value: %w", err))
		}

		if isArrayOfObjects(raw) {
			inner := json.NewDecoder(strings.NewReader(string(raw)))
			inner.UseNumber()
			if _, err := inner.Token(); err != nil { // opening '['
				return reportErr(onErr, *line, err)
			}
			return streamObjects(ctx, inner, emit, onErr, line)
		}

		var v any
		d := json.NewDecoder(strings.NewReader(string(raw)))
		d.UseNumber()
		if err := d.Decode(&v); err != nil {
			return reportErr(onErr, *line, err)
		}
		single[key] = v
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return reportErr(onErr, *line, fmt.Errorf("json: read envelope end: %w", err))
	}
	return emit(single)
}

// streamConcatenated drains objects that follow the root value, so an
// array export with trailing JSONL records still loads fully.
func streamConcatenated(dec *json.Decoder, emit func(map[string]any) error, onErr func(int, error), line *int) error {
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if err == io.EOF {
				return nil
			}
			return reportErr(onErr, *line+1, fmt.Errorf("json: decode trailing object: %w", err))
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
}

func isArrayOfObjects(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "[") {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(s, "["))
	return strings.HasPrefix(rest, "{")
}

// cellValue normalizes a decoded JSON value into a cell the storage layer
// can bind: numbers become int64 or float64, string arrays are joined,
// empty strings become nil to match the CSV parser.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return t
	case []any:
		ss := make([]string, 0, len(t))
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				return fmt.Sprintf("%v", t)
			}
			ss = append(ss, s)
		}
		return strings.Join(ss, ",")
	default:
		return v
	}
}

func reportErr(onErr func(int, error), line int, err error) error {
	if onErr != nil {
		onErr(line, err)
	}
	return err
}

// Collect runs StreamRows to completion and returns all rows.
func Collect(ctx context.Context, src io.ReadCloser, columns []string, opt config.Options, onErr func(line int, err error)) ([]parser.Row, error) {
	out := make(chan parser.Row, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- StreamRows(ctx, src, columns, opt, out, onErr)
		close(out)
	}()

	var rows []parser.Row
	for r := range out {
		rows = append(rows, r)
	}
	return rows, <-errCh
}
