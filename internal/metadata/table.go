package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
)

// Table is the metadata of one stream, one row per frame in stream order.
type Table struct {
	System dv.System
	Rows   []Info
}

var csvHeader = []string{"frame", "system", "arbitrary_bits", "track_application_id", "title_timecode"}

// WriteCSV stores the table with a header row. Unknown fields are empty.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range t.Rows {
		apt, tc := "", ""
		if row.HasAPT {
			apt = hexNibble(row.APT)
		}
		if row.HasTimecode {
			tc = row.Timecode.String()
		}
		record := []string{
			strconv.FormatInt(row.Index, 10),
			t.System.String(),
			hexNibble(row.Arbitrary),
			apt,
			tc,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a table written by WriteCSV, possibly edited by hand.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	header, err := cr.Read()
	if err != nil {
		return Table{}, invalid("read header", err)
	}
	if !slices.Equal(header, csvHeader) {
		return Table{}, invalid(fmt.Sprintf("unexpected columns %v", header), nil)
	}
	var (
		t    Table
		seen bool
	)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return Table{}, invalid("read row", err)
		}
		system, err := dv.ParseSystem(strings.TrimSpace(record[1]))
		if err != nil {
			return Table{}, invalid(fmt.Sprintf("line %d", line), err)
		}
		if seen && system != t.System {
			return Table{}, invalid(fmt.Sprintf("line %d: system %s differs from %s", line, system, t.System), nil)
		}
		t.System, seen = system, true
		row, err := parseRow(system, record)
		if err != nil {
			return Table{}, invalid(fmt.Sprintf("line %d", line), err)
		}
		if n := len(t.Rows); n > 0 && row.Index <= t.Rows[n-1].Index {
			return Table{}, invalid(fmt.Sprintf("line %d: frame %d out of order", line, row.Index), nil)
		}
		t.Rows = append(t.Rows, row)
	}
}

func parseRow(system dv.System, record []string) (Info, error) {
	var row Info
	index, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil || index < 0 {
		return Info{}, fmt.Errorf("bad frame number %q", record[0])
	}
	row.Index = index
	arb, err := parseNibble(record[2], 0x0F)
	if err != nil {
		return Info{}, fmt.Errorf("arbitrary_bits: %w", err)
	}
	row.Arbitrary = arb
	if text := strings.TrimSpace(record[3]); text != "" {
		apt, err := parseNibble(text, 0x07)
		if err != nil {
			return Info{}, fmt.Errorf("track_application_id: %w", err)
		}
		row.APT, row.HasAPT = apt, true
	}
	if text := strings.TrimSpace(record[4]); text != "" {
		tc, err := dv.ParseTimecodeText(system, text)
		if err != nil {
			return Info{}, err
		}
		row.Timecode, row.HasTimecode = tc, true
	}
	return row, nil
}

func hexNibble(v uint8) string {
	return fmt.Sprintf("0x%X", v)
}

// parseNibble accepts decimal or 0x-prefixed hex no larger than max.
func parseNibble(text string, max uint8) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", text)
	}
	if v > uint64(max) {
		return 0, fmt.Errorf("value %q exceeds 0x%X", text, max)
	}
	return uint8(v), nil
}

func invalid(message string, err error) error {
	return faults.Wrap(faults.ErrInvalidInput, "metadata", "", message, err)
}
