// Package client is a thin HTTP client for the debug/introspection
// service: a base URL, a shared http.Client, and one method per route.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to an httpapi.Server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Info mirrors the JSON shape returned by GET /api/v1/info.
type Info struct {
	ChipID    int    `json:"chip_id"`
	Serial    string `json:"serial"`
	DVSWidth  int    `json:"dvs_width"`
	DVSHeight int    `json:"dvs_height"`
	APSWidth  int    `json:"aps_width"`
	APSHeight int    `json:"aps_height"`
}

// StreamStats mirrors one stream's object in the JSON shape returned by
// GET /api/v1/stats.
type StreamStats struct {
	Commits        int64 `json:"commits"`
	Drops          int64 `json:"drops"`
	LastCommitTSUs int64 `json:"last_commit_ts_us"`
}

// Stats mirrors the JSON shape returned by GET /api/v1/stats.
type Stats struct {
	RingDepth    int         `json:"ring_depth"`
	RingCapacity int         `json:"ring_capacity"`
	Polarity     StreamStats `json:"polarity"`
	Special      StreamStats `json:"special"`
	Frame        StreamStats `json:"frame"`
	IMU6         StreamStats `json:"imu6"`
}

// Info fetches the camera's fixed identity and geometry.
func (c *Client) Info() (*Info, error) {
	resp, err := c.http.Get(c.baseURL + "/api/v1/info")
	if err != nil {
		return nil, fmt.Errorf("client: get info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: get info: status %d", resp.StatusCode)
	}
	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("client: decode info: %w", err)
	}
	return &info, nil
}

// Stats fetches ring depth and per-stream commit/drop counters.
func (c *Client) Stats() (*Stats, error) {
	resp, err := c.http.Get(c.baseURL + "/api/v1/stats")
	if err != nil {
		return nil, fmt.Errorf("client: get stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: get stats: status %d", resp.StatusCode)
	}
	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("client: decode stats: %w", err)
	}
	return &stats, nil
}

// ConfigGet reads a single configuration parameter.
func (c *Client) ConfigGet(module, param string) (int64, error) {
	url := fmt.Sprintf("%s/api/v1/config/%s/%s", c.baseURL, module, param)
	resp, err := c.http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("client: get config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("client: get config %s/%s: status %d", module, param, resp.StatusCode)
	}
	var body struct {
		Value int64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("client: decode config: %w", err)
	}
	return body.Value, nil
}

// ConfigSet writes a single configuration parameter.
func (c *Client) ConfigSet(module, param string, value int64) error {
	url := fmt.Sprintf("%s/api/v1/config/%s/%s", c.baseURL, module, param)
	payload, err := json.Marshal(map[string]int64{"value": value})
	if err != nil {
		return fmt.Errorf("client: marshal config request: %w", err)
	}
	resp, err := c.http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: set config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: set config %s/%s: status %d", module, param, resp.StatusCode)
	}
	return nil
}
