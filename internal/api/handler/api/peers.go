// internal/api/handler/api/peers.go
package api

import (
	"encoding/json"
	"net/http"

	"github.com/newthinker/comps/internal/api/response"
	"github.com/newthinker/comps/internal/core"
)

// PeersApp defines the interface needed from app.App.
type PeersApp interface {
	PeerSets() []string
	PeerSet(name string) ([]string, bool)
	SetPeerSet(name string, symbols []string) ([]string, error)
	RemovePeerSet(name string) bool
}

// PeersHandler handles peer set API requests.
type PeersHandler struct {
	app PeersApp
}

// NewPeersHandler creates a new peer set handler.
func NewPeersHandler(app PeersApp) *PeersHandler {
	return &PeersHandler{app: app}
}

// PutRequest is the request body for saving a peer set.
type PutRequest struct {
	Symbols []string `json:"symbols"`
}

// List returns every peer set with its symbols.
// GET /api/v1/peers
func (h *PeersHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.app.PeerSets()
	sets := make(map[string][]string, len(names))
	for _, name := range names {
		if symbols, ok := h.app.PeerSet(name); ok {
			sets[name] = symbols
		}
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"peer_sets": sets,
		"count":     len(sets),
	})
}

// Get returns one peer set.
// GET /api/v1/peers/{name}
func (h *PeersHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	symbols, ok := h.app.PeerSet(name)
	if !ok {
		response.Fail(w, core.ErrPeerSetUnknown)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"symbols": symbols,
	})
}

// Put creates or replaces a peer set.
// PUT /api/v1/peers/{name}
func (h *PeersHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, err))
		return
	}

	name := r.PathValue("name")
	symbols, err := h.app.SetPeerSet(name, req.Symbols)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"symbols": symbols,
	})
}

// Remove deletes a peer set.
// DELETE /api/v1/peers/{name}
func (h *PeersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.app.RemovePeerSet(name) {
		response.Fail(w, core.ErrPeerSetUnknown)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"removed": true,
	})
}
