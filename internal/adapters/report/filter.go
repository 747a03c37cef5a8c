package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"immunocore/internal/core"
	"immunocore/pkg/domain"
)

// allValues is the selector label meaning "no constraint".
const allValues = "All"

// AnalysisPayload is the JSON body accepted by the analysis and export
// endpoints. Each filter value is null or "All" for no constraint, a string
// or number for equality, or an array for membership; an empty array
// matches nothing. A missing populations field selects all five.
type AnalysisPayload struct {
	Filter      map[string]json.RawMessage `json:"filter"`
	Populations []string                   `json:"populations"`
}

// Request converts the payload into a service request.
func (p AnalysisPayload) Request() (core.AnalysisRequest, error) {
	spec, err := DecodeFilter(p.Filter)
	if err != nil {
		return core.AnalysisRequest{}, err
	}
	req := core.AnalysisRequest{Filter: spec}
	if p.Populations != nil {
		req.Populations = make([]domain.Population, 0, len(p.Populations))
		for _, name := range p.Populations {
			pop, err := domain.ParsePopulation(name)
			if err != nil {
				return core.AnalysisRequest{}, &domain.FilterError{Attribute: "population", Reason: err.Error()}
			}
			req.Populations = append(req.Populations, pop)
		}
	}
	return req, nil
}

// DecodeFilter builds a FilterSpec from per-attribute JSON selectors.
func DecodeFilter(raw map[string]json.RawMessage) (domain.FilterSpec, error) {
	spec := domain.NewFilterSpec()
	for name, value := range raw {
		attr, err := domain.ParseAttribute(name)
		if err != nil {
			return nil, err
		}
		c, err := decodeConstraint(value)
		if err != nil {
			return nil, &domain.FilterError{Attribute: attr, Reason: err.Error()}
		}
		spec = spec.With(attr, c)
	}
	return spec, nil
}

func decodeConstraint(raw json.RawMessage) (domain.Constraint, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.Any(), nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return domain.Constraint{}, fmt.Errorf("malformed value list: %w", err)
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			v, err := scalar(item)
			if err != nil {
				return domain.Constraint{}, err
			}
			values = append(values, v)
		}
		return domain.OneOf(values...), nil
	}
	v, err := scalar(trimmed)
	if err != nil {
		return domain.Constraint{}, err
	}
	if v == allValues {
		return domain.Any(), nil
	}
	return domain.Equals(v), nil
}

func scalar(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("unsupported value %s", strings.TrimSpace(string(raw)))
}
