package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"daviscore/pkg/davis"
)

type fakeDevice struct {
	info   davis.Info
	values map[string]int64
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		info:   davis.Info{DVSWidth: 240, DVSHeight: 180},
		values: map[string]int64{"ring_size": 64},
	}
}

func (f *fakeDevice) InfoGet() davis.Info { return f.info }

func (f *fakeDevice) ConfigGet(name string) (int64, error) {
	v, ok := f.values[name]
	if !ok {
		return 0, errNotFound(name)
	}
	return v, nil
}

func (f *fakeDevice) ConfigSet(name string, value int64) error {
	if _, ok := f.values[name]; !ok {
		return errNotFound(name)
	}
	f.values[name] = value
	return nil
}

func (f *fakeDevice) Stats() davis.Stats {
	return davis.Stats{
		RingDepth:    3,
		RingCapacity: 64,
		Polarity:     davis.StreamStats{Commits: 10, Drops: 1, LastCommitTSUs: 500},
	}
}

type errNotFound string

func (e errNotFound) Error() string { return "unknown parameter: " + string(e) }

func TestHandleInfo(t *testing.T) {
	dev := newFakeDevice()
	s := NewServer(dev, gin.TestMode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["dvs_width"].(float64) != 240 {
		t.Fatalf("unexpected dvs_width: %v", body["dvs_width"])
	}
}

func TestHandleConfigGetAndSet(t *testing.T) {
	dev := newFakeDevice()
	s := NewServer(dev, gin.TestMode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/ring/size", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}

	body, _ := json.Marshal(map[string]int64{"value": 128})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/config/ring/size", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, want 200", rec.Code)
	}
	if dev.values["ring_size"] != 128 {
		t.Fatalf("expected ring_size updated to 128, got %d", dev.values["ring_size"])
	}
}

func TestHandleStats(t *testing.T) {
	dev := newFakeDevice()
	s := NewServer(dev, gin.TestMode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["ring_depth"].(float64) != 3 {
		t.Fatalf("unexpected ring_depth: %v", body["ring_depth"])
	}
	polarity, ok := body["polarity"].(map[string]any)
	if !ok {
		t.Fatalf("expected polarity stats object, got %v", body["polarity"])
	}
	if polarity["commits"].(float64) != 10 || polarity["drops"].(float64) != 1 {
		t.Fatalf("unexpected polarity stats: %v", polarity)
	}
}

func TestHandleConfigGetUnknownParamIs404(t *testing.T) {
	dev := newFakeDevice()
	s := NewServer(dev, gin.TestMode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/not/real", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
