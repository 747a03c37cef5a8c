// Package ingest reads cell-count CSV exports into sample records.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"

	"immunocore/pkg/domain"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Columns lists the header a cell-count file must carry, in file order.
var Columns = []string{
	"project", "subject", "condition", "age", "sex", "treatment", "response",
	"sample", "sample_type", "time_from_treatment_start",
	"b_cell", "cd8_t_cell", "cd4_t_cell", "nk_cell", "monocyte",
}

// Row is one line of a cell-count file. Numeric columns are kept as text so
// a blank cell is reported instead of decoding as zero.
type Row struct {
	Project                string `csv:"project"`
	Subject                string `csv:"subject"`
	Condition              string `csv:"condition"`
	Age                    string `csv:"age"`
	Sex                    string `csv:"sex"`
	Treatment              string `csv:"treatment"`
	Response               string `csv:"response"`
	Sample                 string `csv:"sample"`
	SampleType             string `csv:"sample_type"`
	TimeFromTreatmentStart string `csv:"time_from_treatment_start"`
	BCell                  string `csv:"b_cell"`
	CD8TCell               string `csv:"cd8_t_cell"`
	CD4TCell               string `csv:"cd4_t_cell"`
	NKCell                 string `csv:"nk_cell"`
	Monocyte               string `csv:"monocyte"`
}

// Record converts the row. Empty treatment and response become null. A blank
// or non-integer age, time or count yields a *domain.DataIntegrityError.
func (r Row) Record() (domain.SampleRecord, error) {
	rec := domain.SampleRecord{
		Project:    strings.TrimSpace(r.Project),
		Subject:    strings.TrimSpace(r.Subject),
		Condition:  strings.TrimSpace(r.Condition),
		Sex:        strings.TrimSpace(r.Sex),
		Treatment:  optional(r.Treatment),
		Response:   optional(r.Response),
		Sample:     strings.TrimSpace(r.Sample),
		SampleType: strings.TrimSpace(r.SampleType),
	}
	p := parser{sample: rec.Sample}
	rec.Age = int(p.integer("age", r.Age, "missing value"))
	rec.TimeFromTreatmentStart = int(p.integer("time_from_treatment_start", r.TimeFromTreatmentStart, "missing value"))
	rec.Counts = domain.PopulationCounts{
		BCell:    p.integer(string(domain.PopulationBCell), r.BCell, "missing count"),
		CD8TCell: p.integer(string(domain.PopulationCD8TCell), r.CD8TCell, "missing count"),
		CD4TCell: p.integer(string(domain.PopulationCD4TCell), r.CD4TCell, "missing count"),
		NKCell:   p.integer(string(domain.PopulationNKCell), r.NKCell, "missing count"),
		Monocyte: p.integer(string(domain.PopulationMonocyte), r.Monocyte, "missing count"),
	}
	if p.err != nil {
		return domain.SampleRecord{}, p.err
	}
	return rec, nil
}

// parser keeps the first column error of a row.
type parser struct {
	sample string
	err    error
}

func (p *parser) integer(field, raw, blankReason string) int64 {
	if p.err != nil {
		return 0
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		p.err = &domain.DataIntegrityError{Sample: p.sample, Field: field, Reason: blankReason}
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.err = &domain.DataIntegrityError{Sample: p.sample, Field: field, Reason: fmt.Sprintf("value %q is not an integer", raw)}
		return 0
	}
	return n
}

// RowFrom is the inverse of Row.Record.
func RowFrom(rec domain.SampleRecord) Row {
	return Row{
		Project:                rec.Project,
		Subject:                rec.Subject,
		Condition:              rec.Condition,
		Age:                    strconv.Itoa(rec.Age),
		Sex:                    rec.Sex,
		Treatment:              rec.Treatment.String,
		Response:               rec.Response.String,
		Sample:                 rec.Sample,
		SampleType:             rec.SampleType,
		TimeFromTreatmentStart: strconv.Itoa(rec.TimeFromTreatmentStart),
		BCell:                  strconv.FormatInt(rec.Counts.BCell, 10),
		CD8TCell:               strconv.FormatInt(rec.Counts.CD8TCell, 10),
		CD4TCell:               strconv.FormatInt(rec.Counts.CD4TCell, 10),
		NKCell:                 strconv.FormatInt(rec.Counts.NKCell, 10),
		Monocyte:               strconv.FormatInt(rec.Counts.Monocyte, 10),
	}
}

func optional(s string) null.String {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}

// Parse reads a cell-count CSV. A header missing any of Columns is rejected
// with a *domain.DataIntegrityError, as is a row with a blank or malformed
// numeric cell. Record-level checks are left to domain.ValidateRecords.
func Parse(r io.Reader) ([]domain.SampleRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read cell counts: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if err := checkHeader(data); err != nil {
		return nil, err
	}
	var rows []*Row
	if err := gocsv.UnmarshalCSV(newReader(bytes.NewReader(data)), &rows); err != nil {
		return nil, fmt.Errorf("parse cell counts: %w", err)
	}
	out := make([]domain.SampleRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadFile parses the CSV at path.
func ReadFile(path string) ([]domain.SampleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Write emits records in the same layout Parse reads.
func Write(w io.Writer, records []domain.SampleRecord) error {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RowFrom(rec))
	}
	return gocsv.Marshal(rows, w)
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return cr
}

func checkHeader(data []byte) error {
	header, err := newReader(bytes.NewReader(data)).Read()
	if err == io.EOF {
		return &domain.DataIntegrityError{Field: "header", Reason: "file is empty"}
	}
	if err != nil {
		return fmt.Errorf("parse cell counts header: %w", err)
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range Columns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &domain.DataIntegrityError{Field: "header", Reason: "missing columns " + strings.Join(missing, ", ")}
	}
	return nil
}
