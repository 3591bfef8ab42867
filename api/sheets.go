package api

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
)

// sheetFilter reads status, from and to. Dates are YYYY-MM-DD or RFC 3339;
// to is exclusive.
func sheetFilter(r *http.Request) (expense.SheetFilter, error) {
	q := r.URL.Query()
	var f expense.SheetFilter
	if s := q.Get("status"); s != "" {
		f.Status = model.SheetStatus(s)
		if !f.Status.Valid() {
			return f, model.Invalidf("unknown status %q", s)
		}
	}
	var err error
	if f.CreatedFrom, err = parseTime(q.Get("from")); err != nil {
		return f, err
	}
	if f.CreatedTo, err = parseTime(q.Get("to")); err != nil {
		return f, err
	}
	if d := q.Get("department"); d != "" {
		f.DepartmentIDs = []string{d}
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, model.Invalidf("invalid date %q", s)
	}
	return t.UTC(), nil
}

func writeSheets(w http.ResponseWriter, sheets []model.ExpenseSheet) {
	if sheets == nil {
		sheets = []model.ExpenseSheet{}
	}
	writeJSON(w, http.StatusOK, sheets)
}

func (h *handler) listSheets(w http.ResponseWriter, r *http.Request) {
	f, err := sheetFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sheets, err := h.Sheets.ListOwn(r.Context(), actor(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSheets(w, sheets)
}

func (h *handler) submitSheet(w http.ResponseWriter, r *http.Request) {
	var in expense.SheetInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Sheets.Submit(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sheets/"+s.ID)
	writeJSON(w, http.StatusCreated, s)
}

func (h *handler) getSheet(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sheets.Get(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) updateSheet(w http.ResponseWriter, r *http.Request) {
	var in expense.SheetInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Sheets.Update(r.Context(), actor(r), mux.Vars(r)["id"], in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) deleteSheet(w http.ResponseWriter, r *http.Request) {
	if err := h.Sheets.Delete(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadAttachment streams the multipart "file" part to storage.
func (h *handler) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	// Multipart framing gets one extra MiB on top of the file limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, r, model.Invalidf("expected multipart/form-data: %v", err))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			h.writeError(w, r, model.Invalidf("missing file part"))
			return
		}
		if err != nil {
			h.writeError(w, r, uploadErr(err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		body := bufio.NewReader(part)
		ct := part.Header.Get("Content-Type")
		if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
			head, _ := body.Peek(512)
			ct = http.DetectContentType(head)
		}
		vars := mux.Vars(r)
		a, err := h.Sheets.AddAttachment(r.Context(), actor(r), vars["id"], vars["costID"], part.FileName(), ct, body)
		_ = part.Close()
		if err != nil {
			h.writeError(w, r, uploadErr(err))
			return
		}
		writeJSON(w, http.StatusCreated, a)
		return
	}
}

func uploadErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: body exceeds %d bytes", expense.ErrTooLarge, mbe.Limit)
	}
	return err
}

// sheetPDF returns the compiled DSF bundle to any reader of the sheet.
func (h *handler) sheetPDF(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.Sheets.Get(r.Context(), actor(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.DSF == nil {
		writeMessage(w, http.StatusServiceUnavailable, "pdf rendering disabled")
		return
	}
	doc, err := h.DSF.Compile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	_, _ = w.Write(doc.PDF)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sheets.Approve(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) reject(w http.ResponseWriter, r *http.Request) {
	var in rejectRequest
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Sheets.Reject(r.Context(), actor(r), mux.Vars(r)["id"], in.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) approvals(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.Sheets.PendingFor(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSheets(w, sheets)
}
