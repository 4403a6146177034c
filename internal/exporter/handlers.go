package exporter

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/stats"
)

type handlers struct {
	acc  *stats.Accumulator
	opts Options
}

// Metrics 渲染 Prometheus 文本格式的累计流量指标。
func (h *handlers) Metrics(c *gin.Context) {
	doc := h.acc.Render(h.opts.Threshold, h.opts.Geo)
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(doc))
}

func (h *handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// History 按 IP 查询历史采样记录。
func (h *handlers) History(c *gin.Context) {
	ip := c.Query("ip")
	if net.ParseIP(ip) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip 参数非法"})
		return
	}

	limit := 200
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 2000 {
			limit = v
		}
	}

	rows, err := h.opts.Store.QueryByIP(c.Request.Context(), ip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
