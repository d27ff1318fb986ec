package projectmonitor

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RegisterHTTPHandlers registers the monitor's endpoints at prefix.
//
//	GET  {prefix}       flags from the last check
//	POST {prefix}check  run a check now
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	mux.HandleFunc("GET "+prefix+"{$}", c.handleList)
	mux.HandleFunc("POST "+prefix+"check", c.handleCheck)
}

func (c *Component) handleList(w http.ResponseWriter, _ *http.Request) {
	c.writeJSON(w, http.StatusOK, c.Flags())
}

func (c *Component) handleCheck(w http.ResponseWriter, r *http.Request) {
	flags, err := c.Check(r.Context())
	if err != nil {
		c.logger.Error("Manual project check failed", "error", err)
		http.Error(w, "check failed", http.StatusInternalServerError)
		return
	}
	c.writeJSON(w, http.StatusOK, flags)
}

func (c *Component) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Warn("Failed to encode response", "error", err)
	}
}
