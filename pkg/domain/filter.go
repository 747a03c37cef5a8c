package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Attribute names a filterable sample metadata column.
type Attribute string

// Filterable attributes. Names match the record store column names.
const (
	AttrProject                Attribute = "project"
	AttrSubject                Attribute = "subject"
	AttrCondition              Attribute = "condition"
	AttrAge                    Attribute = "age"
	AttrSex                    Attribute = "sex"
	AttrTreatment              Attribute = "treatment"
	AttrResponse               Attribute = "response"
	AttrSample                 Attribute = "sample"
	AttrSampleType             Attribute = "sample_type"
	AttrTimeFromTreatmentStart Attribute = "time_from_treatment_start"
)

var attributes = []Attribute{
	AttrProject,
	AttrSubject,
	AttrCondition,
	AttrAge,
	AttrSex,
	AttrTreatment,
	AttrResponse,
	AttrSample,
	AttrSampleType,
	AttrTimeFromTreatmentStart,
}

// Attributes lists every filterable attribute in column order.
func Attributes() []Attribute {
	return append([]Attribute(nil), attributes...)
}

// Known reports whether the attribute is filterable.
func (a Attribute) Known() bool {
	for _, candidate := range attributes {
		if candidate == a {
			return true
		}
	}
	return false
}

// Integer reports whether the attribute holds integer values.
func (a Attribute) Integer() bool {
	return a == AttrAge || a == AttrTimeFromTreatmentStart
}

// Nullable reports whether records may omit the attribute.
func (a Attribute) Nullable() bool {
	return a == AttrTreatment || a == AttrResponse
}

// ParseAttribute resolves an attribute name.
func ParseAttribute(name string) (Attribute, error) {
	a := Attribute(strings.TrimSpace(name))
	if !a.Known() {
		return "", &FilterError{Attribute: a, Reason: "unknown attribute"}
	}
	return a, nil
}

// Value returns the record's value for the attribute in canonical string
// form. ok is false when the attribute is null for this record.
func (r SampleRecord) Value(a Attribute) (value string, ok bool) {
	switch a {
	case AttrProject:
		return r.Project, true
	case AttrSubject:
		return r.Subject, true
	case AttrCondition:
		return r.Condition, true
	case AttrAge:
		return strconv.Itoa(r.Age), true
	case AttrSex:
		return r.Sex, true
	case AttrTreatment:
		return r.Treatment.String, r.Treatment.Valid
	case AttrResponse:
		return r.Response.String, r.Response.Valid
	case AttrSample:
		return r.Sample, true
	case AttrSampleType:
		return r.SampleType, true
	case AttrTimeFromTreatmentStart:
		return strconv.Itoa(r.TimeFromTreatmentStart), true
	default:
		return "", false
	}
}

type constraintKind uint8

const (
	constraintAny constraintKind = iota
	constraintEquals
	constraintOneOf
)

// Constraint restricts one attribute. The zero value places no constraint.
type Constraint struct {
	kind   constraintKind
	values []string
}

// Any places no constraint on an attribute.
func Any() Constraint { return Constraint{} }

// Equals requires the attribute to equal value.
func Equals(value string) Constraint {
	return Constraint{kind: constraintEquals, values: []string{value}}
}

// OneOf requires the attribute to be one of values. With no values it
// matches nothing.
func OneOf(values ...string) Constraint {
	return Constraint{kind: constraintOneOf, values: append([]string{}, values...)}
}

// Unconstrained reports whether the constraint accepts every record.
func (c Constraint) Unconstrained() bool { return c.kind == constraintAny }

// MatchesNothing reports the explicit "show nothing" state.
func (c Constraint) MatchesNothing() bool { return c.kind == constraintOneOf && len(c.values) == 0 }

// Values returns a copy of the accepted values.
func (c Constraint) Values() []string { return append([]string(nil), c.values...) }

// Accepts evaluates the constraint against a record value.
func (c Constraint) Accepts(value string, ok bool) bool {
	if c.kind == constraintAny {
		return true
	}
	if !ok {
		return false
	}
	for _, v := range c.values {
		if v == value {
			return true
		}
	}
	return false
}

func (c Constraint) String() string {
	switch c.kind {
	case constraintEquals:
		return "= " + c.values[0]
	case constraintOneOf:
		return "in [" + strings.Join(c.values, ",") + "]"
	default:
		return "All"
	}
}

// FilterSpec is a conjunction of per-attribute constraints. Attributes not
// present in the map are unconstrained.
type FilterSpec map[Attribute]Constraint

// NewFilterSpec returns an empty spec that matches every record.
func NewFilterSpec() FilterSpec { return FilterSpec{} }

// With returns a copy of the spec with the constraint set for the attribute.
func (f FilterSpec) With(a Attribute, c Constraint) FilterSpec {
	out := make(FilterSpec, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[a] = c
	return out
}

// Validate rejects unknown attributes and non-integer values for integer
// attributes. Integer values are compared in canonical form, so Normalize
// should be applied before evaluation.
func (f FilterSpec) Validate() error {
	for _, a := range f.SortedAttributes() {
		if !a.Known() {
			return &FilterError{Attribute: a, Reason: "unknown attribute"}
		}
		if !a.Integer() {
			continue
		}
		for _, v := range f[a].values {
			if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
				return &FilterError{Attribute: a, Reason: fmt.Sprintf("value %q is not an integer", v)}
			}
		}
	}
	return nil
}

// Normalize validates the spec and returns a copy with integer values in
// canonical form and unconstrained entries dropped.
func (f FilterSpec) Normalize() (FilterSpec, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := make(FilterSpec, len(f))
	for a, c := range f {
		if c.Unconstrained() {
			continue
		}
		values := make([]string, len(c.values))
		for i, v := range c.values {
			if a.Integer() {
				n, _ := strconv.Atoi(strings.TrimSpace(v))
				v = strconv.Itoa(n)
			}
			values[i] = v
		}
		out[a] = Constraint{kind: c.kind, values: values}
	}
	return out, nil
}

// Matches evaluates the conjunction against a record. The spec is expected
// to be normalized.
func (f FilterSpec) Matches(r SampleRecord) bool {
	for a, c := range f {
		if !c.Accepts(r.Value(a)) {
			return false
		}
	}
	return true
}

// MatchesNothing reports whether any constraint is the empty membership set.
func (f FilterSpec) MatchesNothing() bool {
	for _, c := range f {
		if c.MatchesNothing() {
			return true
		}
	}
	return false
}

// SortedAttributes returns the constrained attributes in a stable order.
func (f FilterSpec) SortedAttributes() []Attribute {
	out := make([]Attribute, 0, len(f))
	for a := range f {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f FilterSpec) String() string {
	if len(f) == 0 {
		return "All"
	}
	parts := make([]string, 0, len(f))
	for _, a := range f.SortedAttributes() {
		parts = append(parts, fmt.Sprintf("%s %s", a, f[a]))
	}
	return strings.Join(parts, " AND ")
}
