package iftop

import (
	"strconv"
	"strings"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/monitor/ipfilter"
	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// parseRate 把 iftop 的速率文本转成 字节/秒。
// Kb/Mb/Gb 是二进制前缀的比特（先乘 1024^n 再除 8），裸 b 是比特，
// B 已经是字节，没有单位后缀时按比特处理。
func parseRate(rateStr string) (float64, bool) {
	rateStr = strings.TrimSpace(rateStr)
	if rateStr == "" || rateStr == "0" {
		return 0, true
	}

	numberPart := rateStr
	unit := 1.0 / 8.0
	switch {
	case strings.HasSuffix(rateStr, "Kb"):
		numberPart = strings.TrimSuffix(rateStr, "Kb")
		unit = 1024.0 / 8.0
	case strings.HasSuffix(rateStr, "Mb"):
		numberPart = strings.TrimSuffix(rateStr, "Mb")
		unit = 1024.0 * 1024.0 / 8.0
	case strings.HasSuffix(rateStr, "Gb"):
		numberPart = strings.TrimSuffix(rateStr, "Gb")
		unit = 1024.0 * 1024.0 * 1024.0 / 8.0
	case strings.HasSuffix(rateStr, "b"):
		numberPart = strings.TrimSuffix(rateStr, "b")
	case strings.HasSuffix(rateStr, "B"):
		numberPart = strings.TrimSuffix(rateStr, "B")
		unit = 1.0
	}

	n, err := strconv.ParseFloat(numberPart, 64)
	if err != nil {
		return 0, false
	}
	return n * unit, true
}

// parseOutput 解析 iftop -t 的文本输出。
// 一条记录占两行：含 "=>" 且带本机地址的行给出发送速率，
// 紧接着含 "<=" 的行给出远端地址（"<=" 左侧最后一个 token）和接收速率。
// 速率乘采样秒数得到周期内字节数；iftop 不提供包数，恒为 0。
func parseOutput(output, localIP string, sampleInterval int) model.Snapshot {
	stats := make(model.Snapshot)
	if localIP == "" {
		return stats
	}

	lines := strings.Split(output, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, "=>") || !strings.Contains(line, localIP) {
			continue
		}

		parts := strings.SplitN(line, "=>", 2)
		if len(parts) != 2 {
			continue
		}
		rateTokens := strings.Fields(parts[1])
		if len(rateTokens) < 4 {
			continue
		}
		txRate, ok := parseRate(rateTokens[0])
		if !ok {
			continue
		}

		if i+1 >= len(lines) {
			break
		}
		next := strings.TrimSpace(lines[i+1])
		if !strings.Contains(next, "<=") {
			continue
		}
		rxParts := strings.SplitN(next, "<=", 2)
		if len(rxParts) != 2 {
			continue
		}

		ipTokens := strings.Fields(rxParts[0])
		if len(ipTokens) == 0 {
			continue
		}
		remoteIP := ipTokens[len(ipTokens)-1]
		if !ipfilter.IsPublic(remoteIP) {
			continue
		}

		rxRate := 0.0
		if rxTokens := strings.Fields(rxParts[1]); len(rxTokens) > 0 {
			if r, ok := parseRate(rxTokens[0]); ok {
				rxRate = r
			}
		}

		stats[remoteIP] = model.TrafficStats{
			TxBytes: uint64(txRate * float64(sampleInterval)),
			RxBytes: uint64(rxRate * float64(sampleInterval)),
			// iftop 不报告包数
			TxPackets: 0,
			RxPackets: 0,
		}
	}

	return stats
}
