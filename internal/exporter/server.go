package exporter

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/history"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/stats"
	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// Options 是 exporter 的装配参数。
type Options struct {
	ListenAddr string
	// 低于等于该字节数的累计流量不导出
	Threshold uint64
	// Geo 返回 IP 的地理信息，由调用方注入（带缓存的 geoip.Locator.Lookup）
	Geo func(ip string) model.GeoInfo
	// Store 为 nil 时不提供历史查询接口
	Store history.Store
}

// Server 提供拉取式指标端点和历史查询接口。
type Server struct {
	httpServer *http.Server
}

func NewServer(acc *stats.Accumulator, opts Options) *Server {
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":9090"
	}
	if opts.Geo == nil {
		opts.Geo = func(string) model.GeoInfo { return model.UnknownGeo() }
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{acc: acc, opts: opts}
	router.GET("/metrics", h.Metrics)
	router.GET("/healthz", h.Healthz)
	if opts.Store != nil {
		router.GET("/api/v1/history", h.History)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
