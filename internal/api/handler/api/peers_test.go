package api

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/comps/internal/core"
)

type fakePeersApp struct {
	sets map[string][]string
}

func (f *fakePeersApp) PeerSets() []string {
	names := make([]string, 0, len(f.sets))
	for name := range f.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakePeersApp) PeerSet(name string) ([]string, bool) {
	s, ok := f.sets[name]
	return s, ok
}

func (f *fakePeersApp) SetPeerSet(name string, symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, core.ErrNoSymbols
	}
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ToUpper(s)
	}
	f.sets[name] = out
	return out, nil
}

func (f *fakePeersApp) RemovePeerSet(name string) bool {
	if _, ok := f.sets[name]; !ok {
		return false
	}
	delete(f.sets, name)
	return true
}

func TestPeersHandler_List(t *testing.T) {
	h := NewPeersHandler(&fakePeersApp{sets: map[string][]string{
		"software": {"MSFT", "ORCL"},
		"chips":    {"NVDA"},
	}})

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/peers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, float64(2), data["count"])
	sets := data["peer_sets"].(map[string]any)
	assert.Equal(t, []any{"NVDA"}, sets["chips"])
}

func TestPeersHandler_Get(t *testing.T) {
	h := NewPeersHandler(&fakePeersApp{sets: map[string][]string{"chips": {"NVDA", "AMD"}}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/peers/chips", nil)
	req.SetPathValue("name", "chips")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, []any{"NVDA", "AMD"}, data["symbols"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/peers/none", nil)
	req.SetPathValue("name", "none")
	rec = httptest.NewRecorder()
	h.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PEER_SET_NOT_FOUND", decodeError(t, rec).Code)
}

func TestPeersHandler_Put(t *testing.T) {
	app := &fakePeersApp{sets: map[string][]string{}}
	h := NewPeersHandler(app)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/peers/chips", strings.NewReader(`{"symbols":["nvda","amd"]}`))
	req.SetPathValue("name", "chips")
	rec := httptest.NewRecorder()
	h.Put(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"NVDA", "AMD"}, app.sets["chips"])

	req = httptest.NewRequest(http.MethodPut, "/api/v1/peers/chips", strings.NewReader(`{"symbols":[]}`))
	req.SetPathValue("name", "chips")
	rec = httptest.NewRecorder()
	h.Put(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/peers/chips", strings.NewReader(`not json`))
	req.SetPathValue("name", "chips")
	rec = httptest.NewRecorder()
	h.Put(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
}

func TestPeersHandler_Remove(t *testing.T) {
	app := &fakePeersApp{sets: map[string][]string{"chips": {"NVDA"}}}
	h := NewPeersHandler(app)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/peers/chips", nil)
	req.SetPathValue("name", "chips")
	rec := httptest.NewRecorder()
	h.Remove(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, app.sets)

	rec = httptest.NewRecorder()
	h.Remove(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
