// Package api exposes the expense workflow as a JSON REST API.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kilianp07/ndf/auth"
	"github.com/kilianp07/ndf/core/audit"
	"github.com/kilianp07/ndf/core/dsf"
	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/forms"
	"github.com/kilianp07/ndf/core/logger"
	coremetrics "github.com/kilianp07/ndf/core/metrics"
	"github.com/kilianp07/ndf/core/model"
	coremon "github.com/kilianp07/ndf/core/monitoring"
	"github.com/kilianp07/ndf/core/report"
)

// Sheets is the expense workflow.
type Sheets interface {
	Submit(ctx context.Context, actor model.User, in expense.SheetInput) (model.ExpenseSheet, error)
	Update(ctx context.Context, actor model.User, id string, in expense.SheetInput) (model.ExpenseSheet, error)
	Delete(ctx context.Context, actor model.User, id string) error
	Get(ctx context.Context, actor model.User, id string) (model.ExpenseSheet, error)
	ListOwn(ctx context.Context, actor model.User, f expense.SheetFilter) ([]model.ExpenseSheet, error)
	List(ctx context.Context, actor model.User, f expense.SheetFilter) ([]model.ExpenseSheet, error)
	AddAttachment(ctx context.Context, actor model.User, sheetID, costID, name, contentType string, r io.Reader) (model.Attachment, error)
	Approve(ctx context.Context, actor model.User, id string) (model.ExpenseSheet, error)
	Reject(ctx context.Context, actor model.User, id, reason string) (model.ExpenseSheet, error)
	PendingFor(ctx context.Context, actor model.User) ([]model.ExpenseSheet, error)
}

// Forms manages form templates.
type Forms interface {
	List(ctx context.Context, actor model.User) ([]model.Form, error)
	Get(ctx context.Context, actor model.User, id string) (model.Form, error)
	Create(ctx context.Context, actor *model.User, in forms.FormInput) (model.Form, error)
	Update(ctx context.Context, actor *model.User, id string, in forms.FormInput) (model.Form, error)
	AddCost(ctx context.Context, actor *model.User, formID string, in forms.CostInput) (model.FormCost, error)
	AddRate(ctx context.Context, actor *model.User, formID, costID string, in forms.RateInput) (model.Rate, error)
}

// Organisation manages users and departments.
type Organisation interface {
	Me(ctx context.Context, actor model.User) (model.User, model.Memberships, error)
	CreateUser(ctx context.Context, actor *model.User, u model.User) (model.User, error)
	Users(ctx context.Context, actor *model.User) ([]model.User, error)
	CreateDepartment(ctx context.Context, actor *model.User, d model.Department) (model.Department, error)
	Departments(ctx context.Context) ([]model.Department, error)
	AddMember(ctx context.Context, actor *model.User, m model.Membership) error
}

// Reports aggregates approved sheets.
type Reports interface {
	Summary(ctx context.Context, actor model.User, q report.Query) (report.Summary, error)
}

// AuditLog reads the workflow audit trail.
type AuditLog interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Record, error)
}

// Compiler renders the DSF bundle of a sheet.
type Compiler interface {
	Compile(ctx context.Context, sheetID string) (dsf.Document, error)
}

// Deps are the services behind the router. Metrics, Monitor and Log may be
// nil. Without Audit, /api/audit is not routed.
type Deps struct {
	Sheets   Sheets
	Forms    Forms
	Org      Organisation
	Reports  Reports
	DSF      Compiler
	Audit    AuditLog
	Users    auth.UserLookup
	Verifier *auth.Verifier
	Metrics  coremetrics.HTTPRecorder
	Monitor  coremon.Monitor
	Log      logger.Logger
	// Health reports readiness on /healthz.
	Health func(ctx context.Context) error
	// MaxUpload bounds attachment bodies.
	MaxUpload     int64
	RatePerSecond float64
	RateBurst     int
}

type handler struct {
	Deps
	log logger.Logger
}

// NewRouter wires every route with recovery, access log, rate limit and
// bearer authentication, in that order.
func NewRouter(d Deps) *mux.Router {
	d.Log = logger.OrNop(d.Log)
	if d.Metrics == nil {
		d.Metrics = coremetrics.NopSink{}
	}
	if d.Monitor == nil {
		d.Monitor = coremon.Current()
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 10 << 20
	}
	h := &handler{Deps: d, log: d.Log}

	r := mux.NewRouter()
	r.Use(recovery(d.Monitor, d.Log), accessLog(d.Metrics, d.Log))
	if d.RatePerSecond > 0 {
		r.Use(newRateLimiter(d.RatePerSecond, d.RateBurst, clientKey(d.Verifier)).middleware)
	}
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()
	a.Use(auth.Middleware(d.Verifier, d.Users, d.Log))

	a.HandleFunc("/me", h.me).Methods(http.MethodGet)

	a.HandleFunc("/forms", h.listForms).Methods(http.MethodGet)
	a.HandleFunc("/forms", h.createForm).Methods(http.MethodPost)
	a.HandleFunc("/forms/{id}", h.getForm).Methods(http.MethodGet)
	a.HandleFunc("/forms/{id}", h.updateForm).Methods(http.MethodPut)
	a.HandleFunc("/forms/{id}/costs", h.addFormCost).Methods(http.MethodPost)
	a.HandleFunc("/forms/{id}/costs/{costID}/rates", h.addRate).Methods(http.MethodPost)

	a.HandleFunc("/departments", h.listDepartments).Methods(http.MethodGet)
	a.HandleFunc("/departments", h.createDepartment).Methods(http.MethodPost)
	a.HandleFunc("/departments/{id}/members", h.addMember).Methods(http.MethodPost)
	a.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	a.HandleFunc("/users", h.createUser).Methods(http.MethodPost)

	a.HandleFunc("/sheets", h.listSheets).Methods(http.MethodGet)
	a.HandleFunc("/sheets", h.submitSheet).Methods(http.MethodPost)
	a.HandleFunc("/sheets/{id}", h.getSheet).Methods(http.MethodGet)
	a.HandleFunc("/sheets/{id}", h.updateSheet).Methods(http.MethodPut)
	a.HandleFunc("/sheets/{id}", h.deleteSheet).Methods(http.MethodDelete)
	a.HandleFunc("/sheets/{id}/costs/{costID}/attachments", h.uploadAttachment).Methods(http.MethodPost)
	a.HandleFunc("/sheets/{id}/pdf", h.sheetPDF).Methods(http.MethodGet)
	a.HandleFunc("/sheets/{id}/approve", h.approve).Methods(http.MethodPost)
	a.HandleFunc("/sheets/{id}/reject", h.reject).Methods(http.MethodPost)
	a.HandleFunc("/approvals", h.approvals).Methods(http.MethodGet)

	a.HandleFunc("/reports/summary", h.summary).Methods(http.MethodGet)
	a.HandleFunc("/exports/sheets", h.exportSheets).Methods(http.MethodGet)
	if d.Audit != nil {
		a.HandleFunc("/audit", h.auditTrail).Methods(http.MethodGet)
	}
	return r
}

// actor returns the authenticated user. Routes under /api always have one.
func actor(r *http.Request) model.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			h.log.Warnf("health check: %v", err)
			writeMessage(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
