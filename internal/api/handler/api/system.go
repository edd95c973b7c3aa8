// internal/api/handler/api/system.go
package api

import (
	"net/http"

	"github.com/newthinker/comps/internal/api/response"
)

// SystemApp defines the interface needed from app.App.
type SystemApp interface {
	GetStats() map[string]any
	ClearCache() int
}

// SystemHandler exposes runtime statistics and cache control.
type SystemHandler struct {
	app SystemApp
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(app SystemApp) *SystemHandler {
	return &SystemHandler{app: app}
}

// Stats returns application statistics.
// GET /api/v1/stats
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.app.GetStats())
}

// ClearCache drops cached market data.
// DELETE /api/v1/cache
func (h *SystemHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"cleared": h.app.ClearCache(),
	})
}
