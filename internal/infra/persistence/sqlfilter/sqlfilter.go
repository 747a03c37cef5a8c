// Package sqlfilter compiles a domain.FilterSpec into a parameterized SQL
// predicate over the cell_counts table. Values are always bound as
// arguments; only whitelisted column names reach the SQL text.
package sqlfilter

import (
	"fmt"
	"strconv"
	"strings"

	"immunocore/pkg/domain"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders "?" placeholders (SQLite).
func Question(int) string { return "?" }

// Dollar renders "$n" placeholders (PostgreSQL).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

var columns = map[domain.Attribute]string{
	domain.AttrProject:                "project",
	domain.AttrSubject:                "subject",
	domain.AttrCondition:              "condition",
	domain.AttrAge:                    "age",
	domain.AttrSex:                    "sex",
	domain.AttrTreatment:              "treatment",
	domain.AttrResponse:               "response",
	domain.AttrSample:                 "sample",
	domain.AttrSampleType:             "sample_type",
	domain.AttrTimeFromTreatmentStart: "time_from_treatment_start",
}

// Column returns the cell_counts column backing attr.
func Column(attr domain.Attribute) (string, bool) {
	col, ok := columns[attr]
	return col, ok
}

// Where compiles spec into a predicate and its arguments. An unconstrained
// spec yields "1 = 1"; an empty membership set yields "1 = 0". NULL columns
// never satisfy a comparison, matching domain.FilterSpec.Matches.
func Where(spec domain.FilterSpec, ph Placeholder) (string, []any, error) {
	norm, err := spec.Normalize()
	if err != nil {
		return "", nil, err
	}
	if norm.MatchesNothing() {
		return "1 = 0", nil, nil
	}
	if len(norm) == 0 {
		return "1 = 1", nil, nil
	}
	var (
		clauses []string
		args    []any
	)
	for _, attr := range norm.SortedAttributes() {
		col, ok := columns[attr]
		if !ok {
			return "", nil, &domain.FilterError{Attribute: attr, Reason: "unknown attribute"}
		}
		values := norm[attr].Values()
		marks := make([]string, len(values))
		for i, v := range values {
			arg, err := bindValue(attr, v)
			if err != nil {
				return "", nil, err
			}
			args = append(args, arg)
			marks[i] = ph(len(args))
		}
		if len(marks) == 1 {
			clauses = append(clauses, fmt.Sprintf("%s = %s", col, marks[0]))
		} else {
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func bindValue(attr domain.Attribute, v string) (any, error) {
	if !attr.Integer() {
		return v, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, &domain.FilterError{Attribute: attr, Reason: fmt.Sprintf("value %q is not an integer", v)}
	}
	return n, nil
}
