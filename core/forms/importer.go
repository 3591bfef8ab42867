package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ndf/core/model"
)

// File is the YAML layout accepted by Import.
//
//	forms:
//	  - name: Travel
//	    costs:
//	      - name: Mileage
//	        type: km
//	        rates:
//	          - value: 0.32
//	            start: 2024-01-01
type File struct {
	Forms []FormSpec `yaml:"forms"`
}

// FormSpec is one form of an import file.
type FormSpec struct {
	FormInput `yaml:",inline"`
	Costs     []CostSpec `yaml:"costs"`
}

// CostSpec is one form cost of an import file.
type CostSpec struct {
	CostInput `yaml:",inline"`
	Rates     []RateInput `yaml:"rates"`
}

// ImportResult counts what Import changed.
type ImportResult struct {
	FormsCreated int
	FormsUpdated int
	CostsAdded   int
	RatesAdded   int
}

// ParseFile decodes an import file.
func ParseFile(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode forms: %w", err)
	}
	return f, nil
}

// Import applies file idempotently: forms are matched by name, costs by name
// within a form, and rates already present are skipped.
func (s *Service) Import(ctx context.Context, file File) (ImportResult, error) {
	var res ImportResult
	for _, spec := range file.Forms {
		name := strings.TrimSpace(spec.Name)
		form, err := s.store.GetFormByName(ctx, name)
		switch {
		case errors.Is(err, model.ErrNotFound):
			if form, err = s.Create(ctx, nil, spec.FormInput); err != nil {
				return res, fmt.Errorf("form %q: %w", name, err)
			}
			res.FormsCreated++
		case err != nil:
			return res, err
		default:
			if form, err = s.Update(ctx, nil, form.ID, spec.FormInput); err != nil {
				return res, fmt.Errorf("form %q: %w", name, err)
			}
			res.FormsUpdated++
		}

		for _, cs := range spec.Costs {
			fc, found := costByName(form, cs.Name)
			if !found {
				if fc, err = s.AddCost(ctx, nil, form.ID, cs.CostInput); err != nil {
					return res, fmt.Errorf("form %q: %w", name, err)
				}
				res.CostsAdded++
			}
			for _, ri := range cs.Rates {
				if hasRate(fc, ri) {
					continue
				}
				r, err := s.AddRate(ctx, nil, form.ID, fc.ID, ri)
				if err != nil {
					return res, fmt.Errorf("form %q cost %q: %w", name, fc.Name, err)
				}
				fc.Rates = append(fc.Rates, r)
				res.RatesAdded++
			}
		}
	}
	s.log.Infof("forms import: %d created, %d updated, %d costs, %d rates",
		res.FormsCreated, res.FormsUpdated, res.CostsAdded, res.RatesAdded)
	return res, nil
}

func costByName(f model.Form, name string) (model.FormCost, bool) {
	for _, c := range f.Costs {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return model.FormCost{}, false
}

func hasRate(fc model.FormCost, in RateInput) bool {
	for _, r := range fc.Rates {
		if r.Value != in.Value || !r.StartDate.Equal(in.StartDate) {
			continue
		}
		switch {
		case r.EndDate == nil && in.EndDate == nil:
			return true
		case r.EndDate != nil && in.EndDate != nil && r.EndDate.Equal(*in.EndDate):
			return true
		}
	}
	return false
}
