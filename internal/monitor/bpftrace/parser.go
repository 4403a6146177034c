package bpftrace

import (
	"strconv"
	"strings"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/monitor/ipfilter"
	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// bpftrace 脚本输出的协议标记。
const (
	markerStart  = "BPFTRACE_MONITOR_START"
	markerUpdate = "STATS_UPDATE"
	markerEnd    = "STATS_END"
)

// parser 是解析 bpftrace 输出的状态机：
// 当前段由段头行（"TX_BYTES:" 等）切换，@map[ip]: value 行写入 scratch，
// STATS_UPDATE 开启新周期（清空 scratch），STATS_END 产出一个完整周期的 Snapshot。
// 双标记协议保证每个脚本上报间隔恰好产出一个 Snapshot，不会有半个周期泄漏出去。
type parser struct {
	started bool
	section string
	scratch model.Snapshot
}

func newParser() *parser {
	return &parser{scratch: make(model.Snapshot)}
}

// feed 消费一行输出。当一个周期完成且非空时返回 (快照, true)。
func (p *parser) feed(line string) (model.Snapshot, bool) {
	line = strings.TrimSpace(line)

	// START 标记之前的输出是 bpftrace 的启动噪音，全部丢弃。
	if !p.started {
		if strings.Contains(line, markerStart) {
			p.started = true
		}
		return nil, false
	}

	if strings.Contains(line, markerUpdate) {
		// 新周期开始，丢掉上个周期的残留。
		p.scratch = make(model.Snapshot)
		return nil, false
	}

	if strings.Contains(line, markerEnd) {
		var out model.Snapshot
		if len(p.scratch) > 0 {
			out = p.scratch.Clone()
		}
		p.scratch = make(model.Snapshot)
		p.section = ""
		return out, out != nil
	}

	switch line {
	case "TX_BYTES:":
		p.section = "tx_bytes"
		return nil, false
	case "TX_PACKETS:":
		p.section = "tx_packets"
		return nil, false
	case "RX_BYTES:":
		p.section = "rx_bytes"
		return nil, false
	case "RX_PACKETS:":
		p.section = "rx_packets"
		return nil, false
	}

	if p.section != "" {
		p.feedMapLine(line)
	}
	return nil, false
}

// feedMapLine 解析 bpftrace map 输出行，格式：@map_name[key]: value。
func (p *parser) feedMapLine(line string) {
	if !strings.HasPrefix(line, "@") {
		return
	}
	open := strings.Index(line, "[")
	end := strings.Index(line, "]:")
	if open < 0 || end < 0 || end < open {
		return
	}

	ip := line[open+1 : end]
	if !ipfilter.IsPublic(ip) {
		return
	}

	value, err := strconv.ParseUint(strings.TrimSpace(line[end+2:]), 10, 64)
	if err != nil {
		return
	}

	entry := p.scratch[ip]
	switch p.section {
	case "tx_bytes":
		entry.TxBytes = value
	case "tx_packets":
		entry.TxPackets = value
	case "rx_bytes":
		entry.RxBytes = value
	case "rx_packets":
		entry.RxPackets = value
	}
	p.scratch[ip] = entry
}
