package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
)

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// selectAgent handles POST /select.
func (s *Server) selectAgent(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	decision, err := s.dispatcher.Select(r.Context(), req)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// planAgent handles POST /plan.
func (s *Server) planAgent(w http.ResponseWriter, r *http.Request) {
	var req dispatch.PlanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	plan, err := s.dispatcher.Plan(r.Context(), req)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// listAgents handles GET /agent.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dispatch.ListFilter{
		Tier:     agent.Tier(q.Get("tier")),
		Category: q.Get("category"),
		Status:   agent.Status(q.Get("status")),
	}
	if filter.Tier != "" && !filter.Tier.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "tier must be strategic or tactical")
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "status must be stable or draft")
		return
	}

	writeJSON(w, http.StatusOK, s.dispatcher.List(r.Context(), filter))
}

// getAgent handles GET /agent/{name}.
func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	def, err := s.dispatcher.GetInfo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// InstructionsResponse is the body of GET /agent/{name}/instructions.
type InstructionsResponse struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
}

// getInstructions handles GET /agent/{name}/instructions. Clients asking for
// text/markdown get the raw document.
func (s *Server) getInstructions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	text, err := s.dispatcher.GetInstructions(r.Context(), name)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	if acceptsMarkdown(r) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(text))
		return
	}
	writeJSON(w, http.StatusOK, InstructionsResponse{Name: name, Instructions: text})
}

// acceptsMarkdown reports whether any Accept entry names text/markdown with a
// non-zero quality.
func acceptsMarkdown(r *http.Request) bool {
	for _, header := range r.Header.Values("Accept") {
		for _, entry := range strings.Split(header, ",") {
			mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(entry))
			if err != nil || mediaType != "text/markdown" {
				continue
			}
			if q, ok := params["q"]; ok {
				if v, err := strconv.ParseFloat(q, 64); err != nil || v <= 0 {
					continue
				}
			}
			return true
		}
	}
	return false
}

// RegistryInfo describes the snapshot in service.
type RegistryInfo struct {
	ID         string    `json:"id"`
	LoadedAt   time.Time `json:"loadedAt"`
	Agents     int       `json:"agents"`
	Strategic  int       `json:"strategic"`
	Tactical   int       `json:"tactical"`
	Categories []string  `json:"categories"`
}

func registryInfo(reg *agent.Registry) RegistryInfo {
	categories := reg.Categories()
	if categories == nil {
		categories = []string{}
	}
	return RegistryInfo{
		ID:         reg.ID(),
		LoadedAt:   reg.LoadedAt(),
		Agents:     reg.Count(),
		Strategic:  len(reg.ListByTier(agent.TierStrategic)),
		Tactical:   len(reg.ListByTier(agent.TierTactical)),
		Categories: categories,
	}
}

// getRegistry handles GET /registry.
func (s *Server) getRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, registryInfo(s.dispatcher.Snapshot()))
}

// reloadRegistry handles POST /registry/reload. A failed reload leaves the
// previous snapshot in service.
func (s *Server) reloadRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := s.dispatcher.Reload(r.Context(), dispatch.TriggerManual)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registryInfo(reg))
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	reg := s.dispatcher.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":  true,
		"version":  s.config.Version,
		"registry": reg.ID(),
		"agents":   reg.Count(),
	})
}
