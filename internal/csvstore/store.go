// Package csvstore keeps users in append-only CSV files keyed by radio id.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"trbowatch/internal/components/assert"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"
)

const (
	report_store_load   = "store.load"
	report_store_append = "store.append"
)

const (
	ColumnRadioID   = "RADIO_ID"
	ColumnCallsign  = "CALLSIGN"
	ColumnFirstName = "FIRST_NAME"
	ColumnState     = "STATE"
)

// Header is the header row written to new store files.
var Header = []string{ColumnRadioID, ColumnCallsign, ColumnFirstName, ColumnState}

var newFileLayout = layout{
	header: Header,
	cols:   columns{radioID: 0, callsign: 1, firstName: 2, state: 3},
}

// Store is one CSV file of users. Rows are only ever appended, an id that is
// already present is skipped rather than updated.
type Store struct {
	path string
	tel  telemetry.API
}

func New(path string, tel telemetry.API) Store {
	assert.NotEmptyStr(path, "store path")
	return Store{
		path: path,
		tel:  telemetry.NewScopedAPI("csvstore", tel),
	}
}

func (s Store) Path() string {
	return s.path
}

type columns struct {
	radioID, callsign, firstName, state int
}

func locateColumns(header []string) (columns, error) {
	cols := columns{radioID: -1, callsign: -1, firstName: -1, state: -1}
	for i, name := range header {
		switch strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case ColumnRadioID:
			cols.radioID = i
		case ColumnCallsign:
			cols.callsign = i
		case ColumnFirstName:
			cols.firstName = i
		case ColumnState:
			cols.state = i
		}
	}
	if cols.radioID < 0 {
		return cols, fmt.Errorf("missing %s column in header %v", ColumnRadioID, header)
	}
	return cols, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseID accepts plain integers and the "1001.0" form spreadsheet tools
// like to write.
func parseID(value string) (int64, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, ".0")
	return strconv.ParseInt(value, 10, 64)
}

// layout is the header of a store file and where each known column sits in
// it. A nil header means the file is missing or empty.
type layout struct {
	header []string
	cols   columns
}

// row renders u in the column order of the layout. Columns the header lacks
// are dropped, header columns with no user field stay empty.
func (l layout) row(u roster.User) []string {
	out := make([]string, len(l.header))
	set := func(idx int, value string) {
		if idx >= 0 && idx < len(out) {
			out[idx] = value
		}
	}
	set(l.cols.radioID, strconv.FormatInt(u.RadioID, 10))
	set(l.cols.callsign, u.Callsign)
	set(l.cols.firstName, u.FirstName)
	set(l.cols.state, u.State)
	return out
}

// Load reads every user in the store in file order. A missing file is an
// empty store. Rows with an unreadable id are skipped and reported.
func (s Store) Load() ([]roster.User, error) {
	_, users, err := s.read()
	return users, err
}

func (s Store) read() (layout, []roster.User, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return layout{}, nil, nil
	}
	if err != nil {
		return layout{}, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return layout{}, nil, nil
	}
	if err != nil {
		return layout{}, nil, fmt.Errorf("read %s header: %w", s.path, err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return layout{}, nil, fmt.Errorf("%s: %w", s.path, err)
	}
	l := layout{header: header, cols: cols}

	var users []roster.User
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return layout{}, nil, fmt.Errorf("read %s: %w", s.path, err)
		}

		raw := field(row, cols.radioID)
		if raw == "" {
			continue
		}
		id, err := parseID(raw)
		if err != nil {
			s.tel.ReportWarning(report_store_load, fmt.Errorf("parse radio id: %w", err), s.path, raw)
			continue
		}
		users = append(users, roster.User{
			RadioID:   id,
			Callsign:  field(row, cols.callsign),
			FirstName: field(row, cols.firstName),
			State:     field(row, cols.state),
		})
	}

	return l, users, nil
}

// Keys returns the set of radio ids currently in the store.
func (s Store) Keys() (roster.IDSet, error) {
	users, err := s.Load()
	if err != nil {
		return nil, err
	}
	keys := make(roster.IDSet, len(users))
	for _, u := range users {
		keys.Add(u.RadioID)
	}
	return keys, nil
}

// Append writes the users whose id is neither on disk nor earlier in the
// batch, and returns the ones it wrote. The file and its header are created
// when missing. Rows follow the column order of the existing header.
func (s Store) Append(users []roster.User) ([]roster.User, error) {
	l, onDisk, err := s.read()
	if err != nil {
		return nil, err
	}
	existing := make(roster.IDSet, len(onDisk))
	for _, u := range onDisk {
		existing.Add(u.RadioID)
	}

	var pending []roster.User
	for _, u := range users {
		if existing.Has(u.RadioID) {
			s.tel.ReportDebug("skip existing id", s.path, u.RadioID)
			continue
		}
		existing.Add(u.RadioID)
		pending = append(pending, u)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		s.tel.ReportBroken(report_store_append, err, s.path)
		return nil, err
	}
	defer f.Close()

	prefix, err := s.appendPrefix(f)
	if err != nil {
		s.tel.ReportBroken(report_store_append, err, s.path)
		return nil, err
	}
	if prefix != "" {
		_, err = f.WriteString(prefix)
		if err != nil {
			return nil, err
		}
	}

	writer := csv.NewWriter(f)
	if l.header == nil {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if info.Size() == 0 {
			err = writer.Write(Header)
			if err != nil {
				return nil, err
			}
		}
		l = newFileLayout
	}
	for _, u := range pending {
		err = writer.Write(l.row(u))
		if err != nil {
			return nil, err
		}
	}
	writer.Flush()
	err = writer.Error()
	if err != nil {
		s.tel.ReportBroken(report_store_append, err, s.path)
		return nil, err
	}

	return pending, nil
}

// appendPrefix returns a newline when the file does not already end in one,
// so appended rows never join the last existing row.
func (s Store) appendPrefix(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", nil
	}
	last := make([]byte, 1)
	_, err = f.ReadAt(last, info.Size()-1)
	if err != nil {
		return "", err
	}
	if last[0] == '\n' {
		return "", nil
	}
	return "\n", nil
}
