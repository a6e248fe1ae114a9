package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gaiacurves/gaiacurves/internal/api/problem"
	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
)

// ResolveResponse is the body of a successful resolve.
type ResolveResponse struct {
	Name     string `json:"name"`
	ID       string `json:"ID"`
	CrossIDs int    `json:"cross_ids"`
}

// ResolveHandler serves star-name lookups.
type ResolveHandler struct {
	Resolver lightcurve.Resolver
	Env      string
}

func NewResolveHandler(resolver lightcurve.Resolver, env string) *ResolveHandler {
	return &ResolveHandler{Resolver: resolver, Env: env}
}

// Resolve handles GET /api/v1/resolve?name=<star>. An unresolved name is a
// 404; a cross-identifier service failure is a 502.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation,
			"Missing required parameter", errors.New("query parameter 'name' is required"), h.Env)
		return
	}

	res, err := h.Resolver.Resolve(r.Context(), name)
	if err != nil {
		problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream,
			"Cross-identifier lookup failed", err, h.Env)
		return
	}
	if res.Status != lightcurve.Resolved {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound,
			"Gaia ID not found", nil, h.Env,
			problem.WithDetail(fmt.Sprintf("no Gaia DR2 identifier among %d cross-identifiers of %q", res.CrossIDs, name)))
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponse{
		Name:     res.Name,
		ID:       res.Identifier,
		CrossIDs: res.CrossIDs,
	})
}
