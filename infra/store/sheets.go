package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
)

type sheetRow struct {
	ID              string        `db:"id"`
	UserID          string        `db:"user_id"`
	DepartmentID    string        `db:"department_id"`
	FormID          string        `db:"form_id"`
	Description     string        `db:"description"`
	Status          string        `db:"status"`
	Total           float64       `db:"total"`
	DecidedBy       string        `db:"decided_by"`
	DecidedAt       sql.NullInt64 `db:"decided_at"`
	RejectionReason string        `db:"rejection_reason"`
	DSFSentAt       sql.NullInt64 `db:"dsf_sent_at"`
	CreatedAt       int64         `db:"created_at"`
	UpdatedAt       int64         `db:"updated_at"`
}

func (r sheetRow) model() model.ExpenseSheet {
	return model.ExpenseSheet{
		ID:              r.ID,
		UserID:          r.UserID,
		DepartmentID:    r.DepartmentID,
		FormID:          r.FormID,
		Description:     r.Description,
		Status:          model.SheetStatus(r.Status),
		Total:           r.Total,
		Costs:           []model.SheetCost{},
		DecidedBy:       r.DecidedBy,
		DecidedAt:       timePtr(r.DecidedAt),
		RejectionReason: r.RejectionReason,
		DSFSentAt:       timePtr(r.DSFSentAt),
		CreatedAt:       fromUnix(r.CreatedAt),
		UpdatedAt:       fromUnix(r.UpdatedAt),
	}
}

type costRow struct {
	ID          string     `db:"id"`
	SheetID     string     `db:"sheet_id"`
	FormCostID  string     `db:"form_cost_id"`
	Type        string     `db:"type"`
	Day         model.Date `db:"day"`
	Description string     `db:"description"`
	Distance    float64    `db:"distance"`
	Quantity    float64    `db:"quantity"`
	Amount      float64    `db:"amount"`
	RateID      string     `db:"rate_id"`
	RateValue   float64    `db:"rate_value"`
	Total       float64    `db:"total"`
}

type stepRow struct {
	SheetCostID string  `db:"sheet_cost_id"`
	Position    int     `db:"position"`
	FromPlace   string  `db:"from_place"`
	ToPlace     string  `db:"to_place"`
	DistanceKm  float64 `db:"distance_km"`
}

type attachmentRow struct {
	ID          string `db:"id"`
	SheetCostID string `db:"sheet_cost_id"`
	Name        string `db:"name"`
	ContentType string `db:"content_type"`
	Path        string `db:"path"`
	Size        int64  `db:"size"`
	CreatedAt   int64  `db:"created_at"`
}

const (
	sheetColumns = `id, user_id, department_id, form_id, description, status, total, decided_by,
        decided_at, rejection_reason, dsf_sent_at, created_at, updated_at`
	costColumns = `id, sheet_id, form_cost_id, type, day, description, distance, quantity, amount,
        rate_id, rate_value, total`
)

// CreateSheet inserts a sheet with its cost items and steps in one transaction.
func (s *Store) CreateSheet(ctx context.Context, sh model.ExpenseSheet) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.exec(ctx, tx, `INSERT INTO expense_sheets (`+sheetColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sh.ID, sh.UserID, sh.DepartmentID, sh.FormID, sh.Description, string(sh.Status), sh.Total,
			sh.DecidedBy, nullUnix(sh.DecidedAt), sh.RejectionReason, nullUnix(sh.DSFSentAt),
			unix(sh.CreatedAt), unix(sh.UpdatedAt))
		if err != nil {
			return err
		}
		for i, c := range sh.Costs {
			if err := s.insertCost(ctx, tx, i, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertCost(ctx context.Context, tx *sqlx.Tx, pos int, c model.SheetCost) error {
	_, err := s.exec(ctx, tx, `INSERT INTO sheet_costs (`+costColumns+`, position)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SheetID, c.FormCostID, string(c.Type), c.Date, c.Description, c.Distance, c.Quantity,
		c.Amount, c.RateID, c.RateValue, c.Total, pos)
	if err != nil {
		return err
	}
	return s.insertSteps(ctx, tx, c)
}

func (s *Store) insertSteps(ctx context.Context, tx *sqlx.Tx, c model.SheetCost) error {
	for i, st := range c.Steps {
		_, err := s.exec(ctx, tx, `INSERT INTO cost_steps (sheet_cost_id, position, from_place, to_place, distance_km)
            VALUES (?, ?, ?, ?, ?)`, c.ID, i, st.From, st.To, st.DistanceKm)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateSheet rewrites a pending sheet and its cost items. Costs missing from
// sh are removed together with their attachment rows. A decided sheet fails
// with model.ErrInvalidState.
func (s *Store) UpdateSheet(ctx context.Context, sh model.ExpenseSheet) error {
	ids := make(map[string]bool, len(sh.Costs))
	for _, c := range sh.Costs {
		if ids[c.ID] {
			return model.Invalidf("cost %s listed twice", c.ID)
		}
		ids[c.ID] = true
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE expense_sheets SET department_id = ?, form_id = ?, description = ?,
            total = ?, updated_at = ? WHERE id = ? AND status = ?`,
			sh.DepartmentID, sh.FormID, sh.Description, sh.Total, unix(sh.UpdatedAt), sh.ID, string(model.StatusPending))
		if err != nil {
			return err
		}
		if err := s.conditional(ctx, tx, res, sh.ID); err != nil {
			return err
		}

		var existing []string
		if err := tx.SelectContext(ctx, &existing, s.db.Rebind(`SELECT id FROM sheet_costs WHERE sheet_id = ?`), sh.ID); err != nil {
			return mapErr(err)
		}
		kept := make(map[string]bool, len(sh.Costs))
		for _, c := range sh.Costs {
			kept[c.ID] = true
		}
		for _, id := range existing {
			if _, err := s.exec(ctx, tx, `DELETE FROM cost_steps WHERE sheet_cost_id = ?`, id); err != nil {
				return err
			}
			if kept[id] {
				continue
			}
			if _, err := s.exec(ctx, tx, `DELETE FROM attachments WHERE sheet_cost_id = ?`, id); err != nil {
				return err
			}
			if _, err := s.exec(ctx, tx, `DELETE FROM sheet_costs WHERE id = ?`, id); err != nil {
				return err
			}
		}

		present := make(map[string]bool, len(existing))
		for _, id := range existing {
			present[id] = true
		}
		for i, c := range sh.Costs {
			if !present[c.ID] {
				if err := s.insertCost(ctx, tx, i, c); err != nil {
					return err
				}
				continue
			}
			_, err := s.exec(ctx, tx, `UPDATE sheet_costs SET form_cost_id = ?, type = ?, day = ?, description = ?,
                distance = ?, quantity = ?, amount = ?, rate_id = ?, rate_value = ?, total = ?, position = ?
                WHERE id = ?`,
				c.FormCostID, string(c.Type), c.Date, c.Description, c.Distance, c.Quantity, c.Amount,
				c.RateID, c.RateValue, c.Total, i, c.ID)
			if err != nil {
				return err
			}
			if err := s.insertSteps(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSheet loads a sheet with costs, steps and attachments.
func (s *Store) GetSheet(ctx context.Context, id string) (model.ExpenseSheet, error) {
	var r sheetRow
	if err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+sheetColumns+` FROM expense_sheets WHERE id = ?`), id); err != nil {
		return model.ExpenseSheet{}, mapErr(err)
	}
	sheets, err := s.loadSheetCosts(ctx, []sheetRow{r})
	if err != nil {
		return model.ExpenseSheet{}, err
	}
	return sheets[0], nil
}

// ListSheets returns sheets matching f, oldest first.
func (s *Store) ListSheets(ctx context.Context, f expense.SheetFilter) ([]model.ExpenseSheet, error) {
	q := `SELECT ` + sheetColumns + ` FROM expense_sheets WHERE 1 = 1`
	var args []any
	if f.UserID != "" {
		q += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if len(f.DepartmentIDs) > 0 {
		q += ` AND department_id IN (` + inClause(len(f.DepartmentIDs)) + `)`
		for _, id := range f.DepartmentIDs {
			args = append(args, id)
		}
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.CreatedFrom.IsZero() {
		q += ` AND created_at >= ?`
		args = append(args, unix(f.CreatedFrom))
	}
	if !f.CreatedTo.IsZero() {
		q += ` AND created_at < ?`
		args = append(args, unix(f.CreatedTo))
	}
	if f.DSFPending {
		q += ` AND status = ? AND dsf_sent_at IS NULL
            AND department_id IN (SELECT id FROM departments WHERE is_dsf = ?)`
		args = append(args, string(model.StatusApproved), true)
	}
	q += ` ORDER BY created_at, id`

	var rows []sheetRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, mapErr(err)
	}
	return s.loadSheetCosts(ctx, rows)
}

func (s *Store) loadSheetCosts(ctx context.Context, rows []sheetRow) ([]model.ExpenseSheet, error) {
	out := make([]model.ExpenseSheet, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]any, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		ids = append(ids, r.ID)
		index[r.ID] = i
		out = append(out, r.model())
	}

	var costs []costRow
	q := `SELECT ` + costColumns + ` FROM sheet_costs WHERE sheet_id IN (` + inClause(len(ids)) + `) ORDER BY sheet_id, position`
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

	var steps []stepRow
	q = `SELECT sheet_cost_id, position, from_place, to_place, distance_km FROM cost_steps
        WHERE sheet_cost_id IN (` + inClause(len(costIDs)) + `) ORDER BY sheet_cost_id, position`
	if err := s.db.SelectContext(ctx, &steps, s.db.Rebind(q), costIDs...); err != nil {
		return nil, mapErr(err)
	}
	stepsByCost := make(map[string][]model.Step)
	for _, st := range steps {
		stepsByCost[st.SheetCostID] = append(stepsByCost[st.SheetCostID], model.Step{From: st.FromPlace, To: st.ToPlace, DistanceKm: st.DistanceKm})
	}

	var atts []attachmentRow
	q = `SELECT id, sheet_cost_id, name, content_type, path, size, created_at FROM attachments
        WHERE sheet_cost_id IN (` + inClause(len(costIDs)) + `) ORDER BY created_at, id`
	if err := s.db.SelectContext(ctx, &atts, s.db.Rebind(q), costIDs...); err != nil {
		return nil, mapErr(err)
	}
	attsByCost := make(map[string][]model.Attachment)
	for _, a := range atts {
		attsByCost[a.SheetCostID] = append(attsByCost[a.SheetCostID], model.Attachment{
			ID:          a.ID,
			SheetCostID: a.SheetCostID,
			Name:        a.Name,
			ContentType: a.ContentType,
			Path:        a.Path,
			Size:        a.Size,
			CreatedAt:   fromUnix(a.CreatedAt),
		})
	}

	for _, c := range costs {
		i := index[c.SheetID]
		out[i].Costs = append(out[i].Costs, model.SheetCost{
			ID:          c.ID,
			SheetID:     c.SheetID,
			FormCostID:  c.FormCostID,
			Type:        model.CostType(c.Type),
			Date:        c.Day,
			Description: c.Description,
			Distance:    c.Distance,
			Steps:       stepsByCost[c.ID],
			Quantity:    c.Quantity,
			Amount:      c.Amount,
			RateID:      c.RateID,
			RateValue:   c.RateValue,
			Total:       c.Total,
			Attachments: attsByCost[c.ID],
		})
	}
	return out, nil
}

// DeleteSheet removes a pending sheet and everything it owns.
func (s *Store) DeleteSheet(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requirePending(ctx, tx, id); err != nil {
			return err
		}
		sub := `(SELECT id FROM sheet_costs WHERE sheet_id = ?)`
		if _, err := s.exec(ctx, tx, `DELETE FROM attachments WHERE sheet_cost_id IN `+sub, id); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM cost_steps WHERE sheet_cost_id IN `+sub, id); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM sheet_costs WHERE sheet_id = ?`, id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `DELETE FROM expense_sheets WHERE id = ? AND status = ?`, id, string(model.StatusPending))
		if err != nil {
			return err
		}
		return s.conditional(ctx, tx, res, id)
	})
}

// DecideSheet records an approval or rejection on a pending sheet.
func (s *Store) DecideSheet(ctx context.Context, id string, d expense.Decision) error {
	res, err := s.exec(ctx, s.db, `UPDATE expense_sheets SET status = ?, decided_by = ?, decided_at = ?,
        rejection_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(d.Status), d.By, unix(d.At), d.Reason, unix(d.UpdatedAt), id, string(model.StatusPending))
	if err != nil {
		return err
	}
	return s.conditional(ctx, s.db, res, id)
}

// MarkDSFSent stamps the DSF dispatch time once. A second call fails with
// model.ErrInvalidState.
func (s *Store) MarkDSFSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, s.db, `UPDATE expense_sheets SET dsf_sent_at = ? WHERE id = ? AND dsf_sent_at IS NULL`,
		unix(at), id)
	if err != nil {
		return err
	}
	return s.conditional(ctx, s.db, res, id)
}

// conditional distinguishes a missing sheet from a failed state guard. q must
// be the transaction when called inside one.
func (s *Store) conditional(ctx context.Context, q sqlx.QueryerContext, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = sqlx.GetContext(ctx, q, &one, s.db.Rebind(`SELECT 1 FROM expense_sheets WHERE id = ?`), id)
	if err != nil {
		return mapErr(err)
	}
	return model.ErrInvalidState
}

// requirePending fails with model.ErrNotFound or model.ErrInvalidState unless
// the sheet exists and is still pending.
func (s *Store) requirePending(ctx context.Context, q sqlx.QueryerContext, id string) error {
	var status string
	err := sqlx.GetContext(ctx, q, &status, s.db.Rebind(`SELECT status FROM expense_sheets WHERE id = ?`), id)
	if err != nil {
		return mapErr(err)
	}
	if model.SheetStatus(status) != model.StatusPending {
		return model.ErrInvalidState
	}
	return nil
}

// AddAttachment records a stored receipt on a cost item of a pending sheet.
func (s *Store) AddAttachment(ctx context.Context, a model.Attachment) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var sheetID string
		err := tx.GetContext(ctx, &sheetID, s.db.Rebind(`SELECT sheet_id FROM sheet_costs WHERE id = ?`), a.SheetCostID)
		if err != nil {
			return mapErr(err)
		}
		if err := s.requirePending(ctx, tx, sheetID); err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, `INSERT INTO attachments (id, sheet_cost_id, name, content_type, path, size, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.SheetCostID, a.Name, a.ContentType, a.Path, a.Size, unix(a.CreatedAt))
		return err
	})
}

var (
	_ expense.SheetStore = (*Store)(nil)
	_ expense.Directory  = (*Store)(nil)
	_ expense.FormReader = (*Store)(nil)
)
