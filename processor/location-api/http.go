package locationapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/abemis/portal/location"
)

// RegisterHTTPHandlers registers the location-api handlers under prefix
// (e.g. "api/location"):
//
//	GET <prefix>/cascade?region=&province=&district=&city=&barangay=
//	GET <prefix>/{tier}?parent=<code>[&under=districts|provinces]
//
// under only matters for cities-municipalities, which can hang off a
// district or directly off a province.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc("GET "+prefix+"cascade", c.handleCascade)
	mux.HandleFunc("GET "+prefix+"{tier}", c.handleTier)
}

// handleTier lists one tier of the hierarchy.
func (c *Component) handleTier(w http.ResponseWriter, r *http.Request) {
	tier, err := location.ParseTier(r.PathValue("tier"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	parentTier := location.TierDistrict
	if under := q.Get("under"); under != "" {
		if parentTier, err = location.ParseTier(under); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	areas, err := c.lister.List(r.Context(), tier, parentTier, q.Get("parent"))
	if err != nil {
		c.writeError(w, tier, err)
		return
	}

	if c.config.CacheMaxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(c.config.CacheMaxAge))
	}
	writeJSON(w, http.StatusOK, areas)
}

// handleCascade replays a saved selection top down and returns every
// dropdown's options at once. Used when reopening a project whose location
// is already chosen.
func (c *Component) handleCascade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	cascade := location.NewCascade(c.lister)
	cascade.Load(ctx)
	if v := q.Get("region"); v != "" {
		cascade.SelectRegion(ctx, v)
	}
	if v := q.Get("province"); v != "" {
		cascade.SelectProvince(ctx, v)
	}
	if v := q.Get("district"); v != "" {
		cascade.SelectDistrict(ctx, v)
	}
	if v := q.Get("city"); v != "" {
		cascade.SelectCity(ctx, v)
	}
	if v := q.Get("barangay"); v != "" {
		cascade.SelectBarangay(v)
	}

	writeJSON(w, http.StatusOK, cascade.Snapshot())
}

func (c *Component) writeError(w http.ResponseWriter, tier location.Tier, err error) {
	switch {
	case errors.Is(err, location.ErrParentMissing),
		errors.Is(err, location.ErrInvalidCode):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, location.ErrInvalidTier):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, location.ErrUpstream):
		http.Error(w, "Location service unavailable", http.StatusBadGateway)
	default:
		c.logger.Error("location lookup failed", "tier", tier, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
