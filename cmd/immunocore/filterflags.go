package main

import (
	"strings"

	"github.com/spf13/pflag"

	"immunocore/internal/core"
	"immunocore/pkg/domain"
)

// filterFlags binds one repeatable flag per filterable attribute. A flag
// given as "All" places no constraint; an empty value selects nothing.
type filterFlags struct {
	fs          *pflag.FlagSet
	values      map[domain.Attribute]*[]string
	populations []string
}

func flagName(a domain.Attribute) string {
	if a == domain.AttrTimeFromTreatmentStart {
		return "time"
	}
	return strings.ReplaceAll(string(a), "_", "-")
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	f.fs = fs
	f.values = make(map[domain.Attribute]*[]string)
	for _, attr := range domain.Attributes() {
		dst := new([]string)
		f.values[attr] = dst
		fs.StringSliceVar(dst, flagName(attr), nil, "restrict "+string(attr)+" (comma separated, All for no constraint)")
	}
	fs.StringSliceVar(&f.populations, "population", nil, "populations to report (default all)")
}

func (f *filterFlags) request() (core.AnalysisRequest, error) {
	spec := domain.NewFilterSpec()
	for _, attr := range domain.Attributes() {
		if !f.fs.Changed(flagName(attr)) {
			continue
		}
		values := *f.values[attr]
		switch {
		case len(values) == 1 && values[0] == "All":
		case len(values) == 1:
			spec = spec.With(attr, domain.Equals(values[0]))
		default:
			spec = spec.With(attr, domain.OneOf(values...))
		}
	}
	req := core.AnalysisRequest{Filter: spec}
	if f.fs.Changed("population") {
		req.Populations = make([]domain.Population, 0, len(f.populations))
		for _, name := range f.populations {
			p, err := domain.ParsePopulation(name)
			if err != nil {
				return core.AnalysisRequest{}, &domain.FilterError{Attribute: "population", Reason: err.Error()}
			}
			req.Populations = append(req.Populations, p)
		}
	}
	return req, nil
}
