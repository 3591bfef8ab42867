// Package forms manages form templates, their cost types and the
// reimbursement rates attached to them.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
)

// Store persists forms. GetForm returns the form with its costs and rates.
type Store interface {
	CreateForm(ctx context.Context, f model.Form) error
	UpdateForm(ctx context.Context, f model.Form) error
	GetForm(ctx context.Context, id string) (model.Form, error)
	GetFormByName(ctx context.Context, name string) (model.Form, error)
	ListForms(ctx context.Context, activeOnly bool) ([]model.Form, error)
	AddFormCost(ctx context.Context, c model.FormCost) error
	AddRate(ctx context.Context, r model.Rate) error
}

// FormInput carries the editable header of a form.
type FormInput struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Active      *bool  `json:"active,omitempty" yaml:"active"`
}

// CostInput describes a new form cost.
type CostInput struct {
	Name      string         `json:"name" yaml:"name"`
	Type      model.CostType `json:"type" yaml:"type"`
	ValidFrom *model.Date    `json:"valid_from,omitempty" yaml:"valid_from"`
	ValidTo   *model.Date    `json:"valid_to,omitempty" yaml:"valid_to"`
}

// RateInput describes a new rate.
type RateInput struct {
	Value     float64     `json:"value" yaml:"value"`
	StartDate model.Date  `json:"start_date" yaml:"start"`
	EndDate   *model.Date `json:"end_date,omitempty" yaml:"end"`
}

// Service validates and applies form changes.
type Service struct {
	store Store
	log   logger.Logger
	now   func() time.Time
}

// NewService returns a Service backed by store.
func NewService(store Store, log logger.Logger) *Service {
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func admin(actor *model.User) error {
	if actor != nil && !actor.IsAdmin() {
		return fmt.Errorf("%w: admin only", model.ErrForbidden)
	}
	return nil
}

// Create registers an empty form. Forms are active unless in.Active is false.
func (s *Service) Create(ctx context.Context, actor *model.User, in FormInput) (model.Form, error) {
	if err := admin(actor); err != nil {
		return model.Form{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Form{}, model.Invalidf("form name is required")
	}
	if _, err := s.store.GetFormByName(ctx, name); err == nil {
		return model.Form{}, fmt.Errorf("%w: form %q already exists", model.ErrConflict, name)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Form{}, err
	}
	f := model.Form{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateForm(ctx, f); err != nil {
		return model.Form{}, err
	}
	s.log.Infof("form %q created", f.Name)
	return f, nil
}

// Update edits the header of a form. Empty fields keep their value.
func (s *Service) Update(ctx context.Context, actor *model.User, id string, in FormInput) (model.Form, error) {
	if err := admin(actor); err != nil {
		return model.Form{}, err
	}
	f, err := s.store.GetForm(ctx, id)
	if err != nil {
		return model.Form{}, err
	}
	if n := strings.TrimSpace(in.Name); n != "" {
		f.Name = n
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		f.Description = d
	}
	if in.Active != nil {
		f.Active = *in.Active
	}
	if err := s.store.UpdateForm(ctx, f); err != nil {
		return model.Form{}, err
	}
	return f, nil
}

// SetActive toggles whether new sheets may use the form.
func (s *Service) SetActive(ctx context.Context, actor *model.User, id string, active bool) (model.Form, error) {
	return s.Update(ctx, actor, id, FormInput{Active: &active})
}

// AddCost appends a cost type to a form.
func (s *Service) AddCost(ctx context.Context, actor *model.User, formID string, in CostInput) (model.FormCost, error) {
	if err := admin(actor); err != nil {
		return model.FormCost{}, err
	}
	f, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return model.FormCost{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.FormCost{}, model.Invalidf("cost name is required")
	}
	if _, err := model.ParseCostType(string(in.Type)); err != nil {
		return model.FormCost{}, model.Invalidf("%v", err)
	}
	if in.ValidFrom != nil && in.ValidTo != nil && in.ValidTo.Before(*in.ValidFrom) {
		return model.FormCost{}, model.Invalidf("cost %q: valid_to precedes valid_from", name)
	}
	for _, c := range f.Costs {
		if strings.EqualFold(c.Name, name) {
			return model.FormCost{}, fmt.Errorf("%w: cost %q already exists on form %q", model.ErrConflict, name, f.Name)
		}
	}
	c := model.FormCost{
		ID:        uuid.NewString(),
		FormID:    f.ID,
		Name:      name,
		Type:      in.Type,
		ValidFrom: in.ValidFrom,
		ValidTo:   in.ValidTo,
	}
	if err := s.store.AddFormCost(ctx, c); err != nil {
		return model.FormCost{}, err
	}
	return c, nil
}

// AddRate appends a rate to a form cost. Rates of one cost never overlap.
func (s *Service) AddRate(ctx context.Context, actor *model.User, formID, costID string, in RateInput) (model.Rate, error) {
	if err := admin(actor); err != nil {
		return model.Rate{}, err
	}
	f, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return model.Rate{}, err
	}
	fc, ok := f.Cost(costID)
	if !ok {
		return model.Rate{}, fmt.Errorf("cost %s: %w", costID, model.ErrNotFound)
	}
	r := model.Rate{
		ID:         uuid.NewString(),
		FormCostID: fc.ID,
		Value:      in.Value,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
	}
	if err := ValidateRate(fc, r); err != nil {
		return model.Rate{}, err
	}
	if err := s.store.AddRate(ctx, r); err != nil {
		return model.Rate{}, err
	}
	s.log.Infof("rate %.4f from %s added to %s/%s", r.Value, r.StartDate, f.Name, fc.Name)
	return r, nil
}

// ValidateRate checks r against the existing rates of fc.
func ValidateRate(fc model.FormCost, r model.Rate) error {
	if r.StartDate.IsZero() {
		return model.Invalidf("rate start date is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return model.Invalidf("rate end date %s precedes start date %s", r.EndDate, r.StartDate)
	}
	if r.Value <= 0 {
		return model.Invalidf("rate value must be positive")
	}
	if fc.Type == model.CostPercentage && r.Value > 100 {
		return model.Invalidf("percentage rate must not exceed 100")
	}
	for _, o := range fc.Rates {
		if o.Overlaps(r) {
			return fmt.Errorf("%w: %s..%s", model.ErrRateOverlap, o.StartDate, endString(o.EndDate))
		}
	}
	return nil
}

func endString(d *model.Date) string {
	if d == nil {
		return "open"
	}
	return d.String()
}

// List returns forms. Non-admins only see active forms.
func (s *Service) List(ctx context.Context, actor model.User) ([]model.Form, error) {
	return s.store.ListForms(ctx, !actor.IsAdmin())
}

// Get returns a form with its costs and rates. Inactive forms are hidden from
// non-admins.
func (s *Service) Get(ctx context.Context, actor model.User, id string) (model.Form, error) {
	f, err := s.store.GetForm(ctx, id)
	if err != nil {
		return model.Form{}, err
	}
	if !f.Active && !actor.IsAdmin() {
		return model.Form{}, fmt.Errorf("form %s: %w", id, model.ErrNotFound)
	}
	return f, nil
}
