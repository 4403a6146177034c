package monitor

import "github.com/lyh543/ip-traffic-monitor-cli/pkg/model"

// Backend 是流量采集后端的统一接口，现有实现为 iftop（拉取模式）和 bpftrace（推送模式）。
type Backend interface {
	// Init 做一次性初始化（探测外部工具、启动常驻进程等），失败视为启动错误。
	Init() error

	// Start 阻塞采集一个周期，返回 远端IP -> 本周期流量增量。
	// 周期内没有流量时返回空 Snapshot，不算错误。
	Start() (model.Snapshot, error)

	// Stop 停止采集，必须幂等，子进程已退出时不得报错。
	Stop() error

	// Name 返回后端名称，用于日志展示。
	Name() string
}
