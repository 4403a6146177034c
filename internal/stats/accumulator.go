package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// Accumulator 持有进程启动以来按 IP 的累计流量。
// 它是累计表的唯一写入方；锁只在合并和渲染快照期间持有，
// 进程归属和地理查询都在锁外进行，避免拖慢 /metrics 抓取。
type Accumulator struct {
	mu     sync.Mutex
	totals map[string]model.TrafficStats
}

func NewAccumulator() *Accumulator {
	return &Accumulator{totals: make(map[string]model.TrafficStats)}
}

// Merge 把一个周期的增量并入累计表，一次加锁完成全部更新。
// 返回本次触及的各 IP 的累计值副本，供调用方打印周期报告。
func (a *Accumulator) Merge(snap model.Snapshot) map[string]model.TrafficStats {
	merged := make(map[string]model.TrafficStats, len(snap))

	a.mu.Lock()
	for ip, delta := range snap {
		entry := a.totals[ip]
		entry.Add(delta)
		a.totals[ip] = entry
		merged[ip] = entry
	}
	a.mu.Unlock()

	return merged
}

// Totals 返回累计表的完整副本。
func (a *Accumulator) Totals() model.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Snapshot(a.totals).Clone()
}

// Render 生成 Prometheus 文本格式的指标文档。
// 只导出严格大于阈值的样本（恰好等于阈值的不导出）；TX 和 RX 各自独立过滤。
// IP 按字典序输出，保证文档在两次抓取之间稳定。
func (a *Accumulator) Render(threshold uint64, geo func(string) model.GeoInfo) string {
	totals := a.Totals()

	ips := make([]string, 0, len(totals))
	for ip := range totals {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	var b strings.Builder
	b.WriteString("# HELP ip_traffic_tx_bytes_total Total transmitted bytes per IP address\n")
	b.WriteString("# TYPE ip_traffic_tx_bytes_total counter\n")
	for _, ip := range ips {
		if totals[ip].TxBytes <= threshold {
			continue
		}
		writeSample(&b, "ip_traffic_tx_bytes_total", ip, geo(ip), totals[ip].TxBytes)
	}

	b.WriteString("\n# HELP ip_traffic_rx_bytes_total Total received bytes per IP address\n")
	b.WriteString("# TYPE ip_traffic_rx_bytes_total counter\n")
	for _, ip := range ips {
		if totals[ip].RxBytes <= threshold {
			continue
		}
		writeSample(&b, "ip_traffic_rx_bytes_total", ip, geo(ip), totals[ip].RxBytes)
	}

	return b.String()
}

func writeSample(b *strings.Builder, name, ip string, info model.GeoInfo, value uint64) {
	fmt.Fprintf(b, "%s{remote_ip=\"%s\",country=\"%s\",province=\"%s\",city=\"%s\",isp=\"%s\"} %d\n",
		name,
		ip,
		escapeLabel(info.Country),
		escapeLabel(info.Province),
		escapeLabel(info.City),
		escapeLabel(info.ISP),
		value,
	)
}

// escapeLabel 转义 Prometheus 标签值里的反斜杠、双引号和换行。
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
