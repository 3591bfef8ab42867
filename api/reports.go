package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/core/report"
	"github.com/kilianp07/ndf/pkg/export"
)

// summary serves the approved totals between from (inclusive) and to
// (exclusive). Without bounds it covers the current calendar year.
func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	now := time.Now().UTC()
	if from.IsZero() {
		from = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = time.Date(now.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	sum, err := h.Reports.Summary(r.Context(), actor(r), report.Query{From: from, To: to, DepartmentID: q.Get("department")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// exportSheets streams sheets as flat cost rows in CSV or JSON.
func (h *handler) exportSheets(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		h.writeError(w, r, model.Invalidf("unknown format %q", format))
		return
	}
	f, err := sheetFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	sheets, err := h.Sheets.List(r.Context(), a, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	users, err := h.Org.Users(r.Context(), &a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	depts, err := h.Org.Departments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	um := make(map[string]model.User, len(users))
	for _, u := range users {
		um[u.ID] = u
	}
	dm := make(map[string]model.Department, len(depts))
	for _, d := range depts {
		dm[d.ID] = d
	}
	rows := export.Flatten(sheets, um, dm)
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "ndf-sheets."+format))
	if err := export.Write(w, format, rows); err != nil {
		h.log.Errorf("export sheets: %v", err)
	}
}
