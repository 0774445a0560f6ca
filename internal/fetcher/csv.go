package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	HasHeader bool            // if true, the first kept row goes to HeaderCh instead of the row channel
	HeaderCh  chan<- []string // optional: receives the header row
	TrimSpace bool
	// SkipBlank drops rows whose fields are all empty.
	SkipBlank bool
}

// StreamCSV reads r and sends rows on the returned channel. Any read
// error, including cancellation, is sent on the error channel. Both
// channels are closed when reading stops.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1 // allow variable fields
		reader.ReuseRecord = false

		headerDone := !opts.HasHeader
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}
			if opts.SkipBlank && blank(record) {
				continue
			}

			if !headerDone {
				headerDone = true
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ColumnIndex maps normalized header names to their positions.
type ColumnIndex map[string]int

// NewColumnIndex builds an index from a header row. Names are trimmed
// and lowercased; the first occurrence of a name wins.
func NewColumnIndex(header []string) ColumnIndex {
	m := make(ColumnIndex, len(header))
	for i, col := range header {
		k := normalizeCol(col)
		if _, ok := m[k]; !ok {
			m[k] = i
		}
	}
	return m
}

// Get returns the field for the first matching name, or "".
func (c ColumnIndex) Get(record []string, names ...string) string {
	for _, name := range names {
		if i, ok := c[normalizeCol(name)]; ok && i < len(record) {
			return record[i]
		}
	}
	return ""
}

// Has reports whether any of names is present.
func (c ColumnIndex) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := c[normalizeCol(name)]; ok {
			return true
		}
	}
	return false
}

func normalizeCol(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.Join(strings.Fields(s), "_")
}
