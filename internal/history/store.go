package history

import (
	"context"
	"time"
)

// Sample 是一个采样周期内某个远端 IP 的流量记录。
type Sample struct {
	Timestamp   time.Time `json:"timestamp"`
	IP          string    `json:"ip"`
	TxBytes     uint64    `json:"tx_bytes"`
	RxBytes     uint64    `json:"rx_bytes"`
	TxPackets   uint64    `json:"tx_packets"`
	RxPackets   uint64    `json:"rx_packets"`
	PID         int       `json:"pid"`
	ProcessName string    `json:"process_name"`
}

// Store 持久化历史采样记录。
type Store interface {
	Insert(ctx context.Context, samples []Sample) error
	QueryByIP(ctx context.Context, ip string, limit int) ([]Sample, error)
	Close() error
}
