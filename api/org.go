package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kilianp07/ndf/core/model"
)

type meResponse struct {
	model.User
	Memberships model.Memberships `json:"memberships"`
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, ms, err := h.Org.Me(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ms == nil {
		ms = model.Memberships{}
	}
	writeJSON(w, http.StatusOK, meResponse{User: u, Memberships: ms})
}

func (h *handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	ds, err := h.Org.Departments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ds == nil {
		ds = []model.Department{}
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	var in model.Department
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	d, err := h.Org.CreateDepartment(r.Context(), &a, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type memberRequest struct {
	UserID string `json:"user_id"`
	IsHead bool   `json:"is_head"`
}

func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	var in memberRequest
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	m := model.Membership{UserID: in.UserID, DepartmentID: mux.Vars(r)["id"], IsHead: in.IsHead}
	if err := h.Org.AddMember(r.Context(), &a, m); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	us, err := h.Org.Users(r.Context(), &a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if us == nil {
		us = []model.User{}
	}
	writeJSON(w, http.StatusOK, us)
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in model.User
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	u, err := h.Org.CreateUser(r.Context(), &a, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}
