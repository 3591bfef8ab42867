package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/kilianp07/ndf/core/audit"
	"github.com/kilianp07/ndf/core/model"
)

const maxAuditRecords = 1000

// auditTrail lists audit records, most recent last. Admin only.
func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if !actor(r).IsAdmin() {
		h.writeError(w, r, fmt.Errorf("%w: admin only", model.ErrForbidden))
		return
	}
	q, err := auditQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.Audit.Query(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func auditQuery(r *http.Request) (audit.Query, error) {
	v := r.URL.Query()
	q := audit.Query{
		Event:   v.Get("event"),
		SheetID: v.Get("sheet_id"),
		UserID:  v.Get("user_id"),
		Limit:   100,
	}
	var err error
	if q.Since, err = parseTime(v.Get("since")); err != nil {
		return q, err
	}
	if q.Until, err = parseTime(v.Get("until")); err != nil {
		return q, err
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAuditRecords {
			return q, model.Invalidf("limit must be between 1 and %d", maxAuditRecords)
		}
		q.Limit = n
	}
	return q, nil
}
