// Package api implements the middleware's HTTP surface: token-guarded,
// cache-fronted monitoring endpoints proxied to the router client, plus
// health and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lemonylab/ikuai-middle/pkg/cache"
	"github.com/lemonylab/ikuai-middle/pkg/config"
	"github.com/lemonylab/ikuai-middle/pkg/ikuai"
	"github.com/lemonylab/ikuai-middle/pkg/metrics"
)

// wanCheckTimeout bounds the connectivity-check poll loop; the router
// normally answers within a few seconds.
const wanCheckTimeout = 60 * time.Second

// wanPollInterval matches the original middleware's 1s probe cadence.
const wanPollInterval = time.Second

// statQuery keys the per-window statistics caches. Distinct parameter
// combinations are cached independently.
type statQuery struct {
	DateType ikuai.DateType
	Average  bool
}

// Server wires the route table: middleware pipeline, per-endpoint caches,
// and the upstream client.
type Server struct {
	cfg     *config.Config
	client  *ikuai.Client
	metrics *metrics.Metrics
	engine  *gin.Engine
	httpSrv *http.Server

	ifaceInfo    *cache.Slot[json.RawMessage]
	sysInfo      *cache.Slot[json.RawMessage]
	wans         *cache.Slot[json.RawMessage]
	connStat     *cache.Expiring[statQuery, json.RawMessage]
	sysStat      *cache.Expiring[statQuery, json.RawMessage]
	protoStat    *cache.Expiring[ikuai.DateType, json.RawMessage]
	protoDistrib *cache.Expiring[int, json.RawMessage]
}

// NewServer builds the server and its route table.
func NewServer(cfg *config.Config, client *ikuai.Client, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		client:  client,
		metrics: m,
	}

	expire := cfg.CacheExpire
	s.ifaceInfo = cache.NewSlot(expire, func() (json.RawMessage, error) {
		return s.upstream("get_iface_info", client.IfaceInfo)
	})
	s.sysInfo = cache.NewSlot(expire, func() (json.RawMessage, error) {
		return s.upstream("get_sys_info", client.SysInfo)
	})
	s.wans = cache.NewSlot(expire, func() (json.RawMessage, error) {
		return s.upstream("check_wans", func(ctx context.Context) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, wanCheckTimeout)
			defer cancel()
			return client.CheckWANs(ctx, wanPollInterval)
		})
	})
	s.connStat = cache.NewExpiring(expire, func(q statQuery) (json.RawMessage, error) {
		return s.upstream("get_conn_stat", func(ctx context.Context) (json.RawMessage, error) {
			return client.ConnStat(ctx, q.DateType, q.Average)
		})
	})
	s.sysStat = cache.NewExpiring(expire, func(q statQuery) (json.RawMessage, error) {
		return s.upstream("get_sys_stat", func(ctx context.Context) (json.RawMessage, error) {
			return client.SysStat(ctx, q.DateType, q.Average)
		})
	})
	s.protoStat = cache.NewExpiring(expire, func(dt ikuai.DateType) (json.RawMessage, error) {
		return s.upstream("get_proto_stat", func(ctx context.Context) (json.RawMessage, error) {
			return client.ProtoStat(ctx, dt)
		})
	})
	s.protoDistrib = cache.NewExpiring(expire, func(minutes int) (json.RawMessage, error) {
		return s.upstream("get_proto_distrib", func(ctx context.Context) (json.RawMessage, error) {
			return client.ProtoDistrib(ctx, minutes)
		})
	})

	s.engine = s.routes()
	return s
}

// upstream runs one router operation, timing it for the metrics histogram.
// Results are shared between callers through the cache, so the call runs on
// the background context rather than any single request's.
func (s *Server) upstream(endpoint string, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	start := time.Now()
	data, err := fn(context.Background())
	if err == nil {
		s.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
	return data, err
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), recordMetrics(s.metrics))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	authed := r.Group("/", tokenAuth(s.cfg.AccessToken))
	authed.GET("/get_iface_info", s.handleIfaceInfo)
	authed.GET("/get_sys_info", s.handleSysInfo)
	authed.GET("/check_wans", s.handleCheckWANs)
	authed.GET("/get_conn_stat", s.handleConnStat)
	authed.GET("/get_sys_stat", s.handleSysStat)
	authed.GET("/get_proto_stat", s.handleProtoStat)
	authed.GET("/get_proto_distrib", s.handleProtoDistrib)

	return r
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP on addr, blocking until the server stops.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
