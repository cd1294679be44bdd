package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Info{ChipID: 4, DVSWidth: 240, DVSHeight: 180})
	}))
	defer srv.Close()

	c := New(srv.URL)
	info, err := c.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.DVSWidth != 240 || info.ChipID != 4 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestConfigGetSetRoundTrip(t *testing.T) {
	value := int64(64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body struct {
				Value int64 `json:"value"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			value = body.Value
		}
		json.NewEncoder(w).Encode(map[string]int64{"value": value})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.ConfigSet("ring", "size", 128); err != nil {
		t.Fatalf("ConfigSet: %v", err)
	}
	got, err := c.ConfigGet("ring", "size")
	if err != nil {
		t.Fatalf("ConfigGet: %v", err)
	}
	if got != 128 {
		t.Fatalf("got %d, want 128", got)
	}
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Stats{
			RingDepth:    2,
			RingCapacity: 64,
			Polarity:     StreamStats{Commits: 5, Drops: 0, LastCommitTSUs: 100},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RingDepth != 2 || stats.Polarity.Commits != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestInfoNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Info(); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
