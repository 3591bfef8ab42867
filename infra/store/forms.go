package store

import (
	"context"

	"github.com/kilianp07/ndf/core/forms"
	"github.com/kilianp07/ndf/core/model"
)

type formRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Active      bool   `db:"active"`
	CreatedAt   int64  `db:"created_at"`
}

type formCostRow struct {
	ID        string     `db:"id"`
	FormID    string     `db:"form_id"`
	Name      string     `db:"name"`
	Type      string     `db:"type"`
	ValidFrom model.Date `db:"valid_from"`
	ValidTo   model.Date `db:"valid_to"`
}

type rateRow struct {
	ID         string     `db:"id"`
	FormCostID string     `db:"form_cost_id"`
	Value      float64    `db:"value"`
	StartDate  model.Date `db:"start_date"`
	EndDate    model.Date `db:"end_date"`
}

const formColumns = `id, name, description, active, created_at`

// CreateForm inserts the form header. Costs are added separately.
func (s *Store) CreateForm(ctx context.Context, f model.Form) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO forms (`+formColumns+`) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Description, f.Active, unix(f.CreatedAt))
	return err
}

// UpdateForm rewrites name, description and active flag.
func (s *Store) UpdateForm(ctx context.Context, f model.Form) error {
	res, err := s.exec(ctx, s.db, `UPDATE forms SET name = ?, description = ?, active = ? WHERE id = ?`,
		f.Name, f.Description, f.Active, f.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetForm loads a form with its costs and rates.
func (s *Store) GetForm(ctx context.Context, id string) (model.Form, error) {
	var r formRow
	if err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+formColumns+` FROM forms WHERE id = ?`), id); err != nil {
		return model.Form{}, mapErr(err)
	}
	out, err := s.loadCosts(ctx, []formRow{r})
	if err != nil {
		return model.Form{}, err
	}
	return out[0], nil
}

// GetFormByName loads a form by its unique name.
func (s *Store) GetFormByName(ctx context.Context, name string) (model.Form, error) {
	var r formRow
	if err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+formColumns+` FROM forms WHERE name = ?`), name); err != nil {
		return model.Form{}, mapErr(err)
	}
	out, err := s.loadCosts(ctx, []formRow{r})
	if err != nil {
		return model.Form{}, err
	}
	return out[0], nil
}

// ListForms returns forms ordered by name, optionally only active ones.
func (s *Store) ListForms(ctx context.Context, activeOnly bool) ([]model.Form, error) {
	q := `SELECT ` + formColumns + ` FROM forms`
	var args []any
	if activeOnly {
		q += ` WHERE active = ?`
		args = append(args, true)
	}
	q += ` ORDER BY name`
	var rows []formRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, mapErr(err)
	}
	return s.loadCosts(ctx, rows)
}

func (s *Store) loadCosts(ctx context.Context, rows []formRow) ([]model.Form, error) {
	out := make([]model.Form, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]any, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		ids = append(ids, r.ID)
		index[r.ID] = i
		out = append(out, model.Form{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Active:      r.Active,
			Costs:       []model.FormCost{},
			CreatedAt:   fromUnix(r.CreatedAt),
		})
	}

	var costs []formCostRow
	q := `SELECT id, form_id, name, type, valid_from, valid_to FROM form_costs
        WHERE form_id IN (` + inClause(len(ids)) + `) ORDER BY position, name`
	if err := s.db.SelectContext(ctx, &costs, s.db.Rebind(q), ids...); err != nil {
		return nil, mapErr(err)
	}
	if len(costs) == 0 {
		return out, nil
	}
	costIDs := make([]any, 0, len(costs))
	for _, c := range costs {
		costIDs = append(costIDs, c.ID)
	}
	var rates []rateRow
	q = `SELECT id, form_cost_id, value, start_date, end_date FROM rates
        WHERE form_cost_id IN (` + inClause(len(costIDs)) + `) ORDER BY start_date`
	if err := s.db.SelectContext(ctx, &rates, s.db.Rebind(q), costIDs...); err != nil {
		return nil, mapErr(err)
	}
	byCost := make(map[string][]model.Rate, len(costs))
	for _, r := range rates {
		byCost[r.FormCostID] = append(byCost[r.FormCostID], model.Rate{
			ID:         r.ID,
			FormCostID: r.FormCostID,
			Value:      r.Value,
			StartDate:  r.StartDate,
			EndDate:    datePtr(r.EndDate),
		})
	}
	for _, c := range costs {
		i := index[c.FormID]
		rs := byCost[c.ID]
		if rs == nil {
			rs = []model.Rate{}
		}
		out[i].Costs = append(out[i].Costs, model.FormCost{
			ID:        c.ID,
			FormID:    c.FormID,
			Name:      c.Name,
			Type:      model.CostType(c.Type),
			ValidFrom: datePtr(c.ValidFrom),
			ValidTo:   datePtr(c.ValidTo),
			Rates:     rs,
		})
	}
	return out, nil
}

// AddFormCost appends a cost to its form.
func (s *Store) AddFormCost(ctx context.Context, c model.FormCost) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO form_costs (id, form_id, name, type, valid_from, valid_to, position)
        VALUES (?, ?, ?, ?, ?, ?, (SELECT COUNT(*) FROM form_costs WHERE form_id = ?))`,
		c.ID, c.FormID, c.Name, string(c.Type), c.ValidFrom, c.ValidTo, c.FormID)
	return err
}

// AddRate inserts a rate for its form cost.
func (s *Store) AddRate(ctx context.Context, r model.Rate) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO rates (id, form_cost_id, value, start_date, end_date) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.FormCostID, r.Value, r.StartDate, r.EndDate)
	return err
}

var _ forms.Store = (*Store)(nil)
