package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kilianp07/ndf/core/forms"
	"github.com/kilianp07/ndf/core/model"
)

func (h *handler) listForms(w http.ResponseWriter, r *http.Request) {
	fs, err := h.Forms.List(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if fs == nil {
		fs = []model.Form{}
	}
	writeJSON(w, http.StatusOK, fs)
}

func (h *handler) getForm(w http.ResponseWriter, r *http.Request) {
	f, err := h.Forms.Get(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) createForm(w http.ResponseWriter, r *http.Request) {
	var in forms.FormInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	f, err := h.Forms.Create(r.Context(), &a, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *handler) updateForm(w http.ResponseWriter, r *http.Request) {
	var in forms.FormInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	f, err := h.Forms.Update(r.Context(), &a, mux.Vars(r)["id"], in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) addFormCost(w http.ResponseWriter, r *http.Request) {
	var in forms.CostInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	c, err := h.Forms.AddCost(r.Context(), &a, mux.Vars(r)["id"], in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) addRate(w http.ResponseWriter, r *http.Request) {
	var in forms.RateInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a := actor(r)
	vars := mux.Vars(r)
	rt, err := h.Forms.AddRate(r.Context(), &a, vars["id"], vars["costID"], in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}
