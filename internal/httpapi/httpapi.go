// Package httpapi exposes the debug/introspection HTTP service:
// read-only camera info and stats, plus get/set access to runtime
// configuration parameters, laid out with gin route groups.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"daviscore/pkg/davis"
)

// Device is the subset of *davis.Device the API needs.
type Device interface {
	InfoGet() davis.Info
	ConfigGet(name string) (int64, error)
	ConfigSet(name string, value int64) error
	Stats() davis.Stats
}

// Server wraps a gin engine bound to one opened Device.
type Server struct {
	engine *gin.Engine
	dev    Device
}

// NewServer builds the route table. mode is a gin.*Mode constant
// (gin.ReleaseMode in production, gin.DebugMode in development).
func NewServer(dev Device, mode string) *Server {
	gin.SetMode(mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), gin.Logger())

	s := &Server{engine: engine, dev: dev}
	v1 := engine.Group("/api/v1")
	{
		v1.GET("/info", s.handleInfo)
		v1.GET("/stats", s.handleStats)
		v1.GET("/config/:module/:param", s.handleConfigGet)
		v1.POST("/config/:module/:param", s.handleConfigSet)
	}
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleInfo(c *gin.Context) {
	info := s.dev.InfoGet()
	c.JSON(http.StatusOK, gin.H{
		"chip_id":    int(info.ChipID),
		"serial":     info.SerialNumber,
		"dvs_width":  info.DVSWidth,
		"dvs_height": info.DVSHeight,
		"aps_width":  info.APSWidth,
		"aps_height": info.APSHeight,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.dev.Stats()
	c.JSON(http.StatusOK, gin.H{
		"ring_depth":    stats.RingDepth,
		"ring_capacity": stats.RingCapacity,
		"polarity":      streamStatsJSON(stats.Polarity),
		"special":       streamStatsJSON(stats.Special),
		"frame":         streamStatsJSON(stats.Frame),
		"imu6":          streamStatsJSON(stats.IMU6),
	})
}

func streamStatsJSON(s davis.StreamStats) gin.H {
	return gin.H{
		"commits":           s.Commits,
		"drops":             s.Drops,
		"last_commit_ts_us": s.LastCommitTSUs,
	}
}

// configName maps a :module/:param URL pair to the flat parameter names
// davis.Device.ConfigGet/ConfigSet accept; the underlying Runtime cell is
// addressed by its flat name (e.g. "ring"+"size" -> "ring_size").
func configName(module, param string) string {
	return module + "_" + param
}

func (s *Server) handleConfigGet(c *gin.Context) {
	name := configName(c.Param("module"), c.Param("param"))
	value, err := s.dev.ConfigGet(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": value})
}

type configSetRequest struct {
	Value int64 `json:"value" binding:"required"`
}

func (s *Server) handleConfigSet(c *gin.Context) {
	name := configName(c.Param("module"), c.Param("param"))
	var req configSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.dev.ConfigSet(name, req.Value); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": req.Value})
}
