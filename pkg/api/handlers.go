package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lemonylab/ikuai-middle/pkg/ikuai"
	"github.com/lemonylab/ikuai-middle/pkg/version"
)

// handleHealth handles GET /healthz. Liveness stays 200 even while the
// upstream session is down — the session state is reported, not fatal, so
// an orchestrator doesn't restart the middleware over a router hiccup.
func (s *Server) handleHealth(c *gin.Context) {
	authenticated := s.client.Session().Authenticated()
	status := "ok"
	if !authenticated {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"authenticated": authenticated,
		"version":       version.Full(),
	})
}

func (s *Server) handleIfaceInfo(c *gin.Context) {
	s.metrics.CacheLookups.WithLabelValues("get_iface_info").Inc()
	data, err := s.ifaceInfo.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

func (s *Server) handleSysInfo(c *gin.Context) {
	s.metrics.CacheLookups.WithLabelValues("get_sys_info").Inc()
	data, err := s.sysInfo.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

func (s *Server) handleCheckWANs(c *gin.Context) {
	s.metrics.CacheLookups.WithLabelValues("check_wans").Inc()
	data, err := s.wans.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

func (s *Server) handleConnStat(c *gin.Context) {
	q, err := parseStatQuery(c, ikuai.DateTypeHour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.metrics.CacheLookups.WithLabelValues("get_conn_stat").Inc()
	data, err := s.connStat.Get(q)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

func (s *Server) handleSysStat(c *gin.Context) {
	q, err := parseStatQuery(c, ikuai.DateTypeHour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.metrics.CacheLookups.WithLabelValues("get_sys_stat").Inc()
	data, err := s.sysStat.Get(q)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

func (s *Server) handleProtoStat(c *gin.Context) {
	dt := ikuai.DateType(c.DefaultQuery("datetype", string(ikuai.DateTypeDay)))
	if !dt.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid datetype %q", dt)})
		return
	}
	s.metrics.CacheLookups.WithLabelValues("get_proto_stat").Inc()
	data, err := s.protoStat.Get(dt)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

func (s *Server) handleProtoDistrib(c *gin.Context) {
	minutes := 60
	if raw := c.Query("minutes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid minutes %q", raw)})
			return
		}
		minutes = v
	}
	s.metrics.CacheLookups.WithLabelValues("get_proto_distrib").Inc()
	data, err := s.protoDistrib.Get(minutes)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, data)
}

// parseStatQuery reads the shared datetype/average query parameters.
func parseStatQuery(c *gin.Context, defaultDateType ikuai.DateType) (statQuery, error) {
	dt := ikuai.DateType(c.DefaultQuery("datetype", string(defaultDateType)))
	if !dt.Valid() {
		return statQuery{}, fmt.Errorf("invalid datetype %q", dt)
	}

	average := true
	if raw := c.Query("average"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return statQuery{}, fmt.Errorf("invalid average %q", raw)
		}
		average = v
	}
	return statQuery{DateType: dt, Average: average}, nil
}

// writeData sends the router's Data field through verbatim as JSON.
func writeData(c *gin.Context, data json.RawMessage) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
