package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV writes tables as UTF-8 with a byte order mark so spreadsheet tools
// pick the right encoding. Tables are separated by one empty row. Every
// header row is written as-is; spanned cells stay blank.
func CSV(tables ...Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	for i, t := range tables {
		if i > 0 {
			if err := w.Write(make([]string, tables[i-1].Width())); err != nil {
				return nil, fmt.Errorf("failed to write csv separator: %w", err)
			}
		}
		if err := writeTable(w, t); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(w *csv.Writer, t Table) error {
	for _, h := range t.Header {
		if err := w.Write(h); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	record := make([]string, t.Width())
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = row[i].String()
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	return nil
}
