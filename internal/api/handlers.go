package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servio-ai/prospector-cli/internal/filter"
	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/outreach"
)

const maxBodyBytes = 1 << 20

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListLeads handles GET /leads?q=<json conditions>.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	conds, err := filter.DecodeConditions([]byte(r.URL.Query().Get("q")))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondLeads(w, r, conds)
}

// SearchLeads handles POST /leads/search with a condition array body.
func (h *Handlers) SearchLeads(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read body")
		return
	}
	conds, err := filter.DecodeConditions(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondLeads(w, r, conds)
}

func (h *Handlers) respondLeads(w http.ResponseWriter, r *http.Request, conds []filter.Condition) {
	leads, err := h.svc.Leads(r.Context(), conds)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(leads), "leads": leads})
}

type leadRequest struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Company      string     `json:"company"`
	Category     string     `json:"category"`
	Location     string     `json:"location"`
	Stage        string     `json:"stage"`
	Source       string     `json:"source"`
	Notes        string     `json:"notes"`
	Tags         []string   `json:"tags"`
	LastActivity *time.Time `json:"last_activity"`
	ActivityCnt  int        `json:"activity_count"`
}

func (req leadRequest) toLead() (model.Lead, error) {
	l := model.Lead{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Company:      req.Company,
		Category:     req.Category,
		Location:     req.Location,
		Source:       model.ParseSource(req.Source),
		Notes:        req.Notes,
		Tags:         req.Tags,
		LastActivity: req.LastActivity,
	}
	if req.Stage != "" {
		st, err := model.ParseStage(req.Stage)
		if err != nil {
			return model.Lead{}, err
		}
		l.Stage = st
	}
	return l, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// CreateLead handles POST /leads.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lead, err := req.toLead()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if lead.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	created, err := h.svc.CreateLead(r.Context(), &lead)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// GetLead handles GET /leads/{id}.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.svc.Lead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

// MoveStage handles POST /leads/{id}/stage {"stage": "..."}.
func (h *Handlers) MoveStage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage string `json:"stage"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	stage, err := model.ParseStage(req.Stage)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lead, err := h.svc.MoveStage(r.Context(), chi.URLParam(r, "id"), stage)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

// LogActivity handles POST /leads/{id}/activities {"kind": "...", "note": "..."}.
func (h *Handlers) LogActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		Note string `json:"note"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Kind) == "" {
		respondError(w, http.StatusBadRequest, "kind is required")
		return
	}
	a, err := h.svc.LogActivity(r.Context(), chi.URLParam(r, "id"), req.Kind, req.Note)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// Draft handles GET /leads/{id}/draft?channel=email|whatsapp&ai=true.
func (h *Handlers) Draft(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		respondError(w, http.StatusServiceUnavailable, "drafting is not configured")
		return
	}
	channel, err := outreach.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	useAI, _ := strconv.ParseBool(r.URL.Query().Get("ai"))

	lead, err := h.svc.Lead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	draft, err := h.drafter.Draft(r.Context(), *lead, channel, useAI)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// Board handles GET /board?q=<json conditions>.
func (h *Handlers) Board(w http.ResponseWriter, r *http.Request) {
	conds, err := filter.DecodeConditions([]byte(r.URL.Query().Get("q")))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cols, err := h.svc.Board(r.Context(), conds)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cols)
}

// Dashboard handles GET /dashboard.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// ListFilters handles GET /filters.
func (h *Handlers) ListFilters(w http.ResponseWriter, r *http.Request) {
	fs, err := h.svc.Filters(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if fs == nil {
		fs = []model.SavedFilter{}
	}
	respondJSON(w, http.StatusOK, fs)
}

// SaveFilter handles POST /filters {"name": "...", "conditions": [...]}.
func (h *Handlers) SaveFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string             `json:"name"`
		Conditions []filter.Condition `json:"conditions"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := filter.ValidateAll(req.Conditions); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := h.svc.SaveFilter(r.Context(), strings.TrimSpace(req.Name), req.Conditions)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

// RunFilter handles GET /filters/{id}/run. The id may also be a filter name.
func (h *Handlers) RunFilter(w http.ResponseWriter, r *http.Request) {
	leads, err := h.svc.RunSavedFilter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(leads), "leads": leads})
}

// Score handles POST /score with an unsaved lead.
func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lead, err := req.toLead()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if lead.Stage == "" {
		lead.Stage = model.StageNew
	}
	if req.ActivityCnt > 0 {
		lead.Activities = make([]model.Activity, req.ActivityCnt)
	}
	respondJSON(w, http.StatusOK, h.svc.Score(lead))
}
