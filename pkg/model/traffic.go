package model

import "fmt"

// TrafficStats 表示某个远端 IP 的流量计数。
// 由 Backend 产出时是单个采样周期内的增量；由 Accumulator 持有时是进程启动以来的累计值。
type TrafficStats struct {
	TxBytes   uint64 `json:"tx_bytes"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxPackets uint64 `json:"tx_packets"`
	RxPackets uint64 `json:"rx_packets"`
}

// Add 按字段累加另一份统计。加法满足交换律和结合律，采样循环每周期调用一次。
func (t *TrafficStats) Add(other TrafficStats) {
	t.TxBytes += other.TxBytes
	t.RxBytes += other.RxBytes
	t.TxPackets += other.TxPackets
	t.RxPackets += other.RxPackets
}

// Total 返回收发字节数之和，用于排序展示。
func (t TrafficStats) Total() uint64 {
	return t.TxBytes + t.RxBytes
}

// Snapshot 是一个采样周期内 远端IP -> 流量增量 的映射。
// Backend 只向外传递不可变的 Snapshot：要么整个周期的数据都可见，要么一条都没有。
type Snapshot map[string]TrafficStats

// Clone 做一次深拷贝，reader 线程把 scratch 推给消费者前必须复制。
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for ip, st := range s {
		out[ip] = st
	}
	return out
}

// ResolvedIdentity 是 IP 反查到的本机进程信息；PID 为 0 表示未能归属。
type ResolvedIdentity struct {
	PID  int    `json:"pid"`
	Name string `json:"process_name"`
}

// GeoInfo 是 IP 的地理位置信息，查询失败或未加载数据库时各字段为 "Unknown"。
type GeoInfo struct {
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
	ISP      string `json:"isp"`
}

// UnknownGeo 返回全部字段为 "Unknown" 的 GeoInfo。
func UnknownGeo() GeoInfo {
	return GeoInfo{Country: "Unknown", Province: "Unknown", City: "Unknown", ISP: "Unknown"}
}

// FormatBytes 把字节数格式化为人类可读的形式。
func FormatBytes(bytes uint64) string {
	b := float64(bytes)
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GB", b/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.2f MB", b/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.2f KB", b/1024)
	default:
		return fmt.Sprintf("%.0f B", b)
	}
}
