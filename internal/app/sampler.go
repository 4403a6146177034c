package app

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/history"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/monitor"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/stats"
	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// sampler 驱动采样循环：每个周期从后端取一份快照，归属进程后并入累计表。
// 取消只在周期边界检查，一个周期要么完整跑完要么不开始。
type sampler struct {
	backend monitor.Backend
	acc     *stats.Accumulator
	resolve func(ip string) model.ResolvedIdentity
	store   history.Store // 可为 nil
	// cycles 为 0 表示永久运行
	cycles int
}

func (s *sampler) run(ctx context.Context) error {
	cycle := 1
	for {
		if ctx.Err() != nil {
			log.Printf("收到退出信号，采样循环结束")
			return nil
		}
		if s.cycles > 0 && cycle > s.cycles {
			log.Printf("监控完成")
			return nil
		}

		s.runCycle(ctx, cycle)
		cycle++
	}
}

func (s *sampler) runCycle(ctx context.Context, cycle int) {
	if s.cycles > 0 {
		log.Printf("[%d/%d] 正在采集流量数据...", cycle, s.cycles)
	} else {
		log.Printf("[周期 %d] 正在采集流量数据...", cycle)
	}

	snap, err := s.backend.Start()
	if err != nil {
		// 周期性错误不中断循环，按空快照继续
		log.Printf("本周期采集失败：%v", err)
		return
	}
	if len(snap) == 0 {
		log.Printf("无活跃网络连接")
		return
	}

	// 进程归属在累计表锁外完成，慢速的 /proc 扫描不会阻塞指标导出
	identities := make(map[string]model.ResolvedIdentity, len(snap))
	for ip := range snap {
		identities[ip] = s.resolve(ip)
	}

	merged := s.acc.Merge(snap)
	s.report(snap, merged, identities)

	if s.store != nil {
		if err := s.persist(ctx, snap, identities); err != nil {
			log.Printf("写入历史记录失败（忽略继续）：%v", err)
		}
	}
}

// report 打印周期报告，按本周期增量的收发总量降序（相同时保持稳定顺序）。
func (s *sampler) report(snap model.Snapshot, merged map[string]model.TrafficStats, identities map[string]model.ResolvedIdentity) {
	type entry struct {
		ip    string
		delta model.TrafficStats
	}
	entries := make([]entry, 0, len(snap))
	for ip, delta := range snap {
		entries = append(entries, entry{ip: ip, delta: delta})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].delta.Total() > entries[j].delta.Total()
	})

	log.Printf("流量统计：")
	for _, e := range entries {
		if e.delta.Total() == 0 {
			continue
		}
		total := merged[e.ip]
		id := identities[e.ip]
		log.Printf("  IP: %s | TX: %s | RX: %s | 累计TX: %s | 累计RX: %s | PID: %d %s",
			e.ip,
			model.FormatBytes(e.delta.TxBytes),
			model.FormatBytes(e.delta.RxBytes),
			model.FormatBytes(total.TxBytes),
			model.FormatBytes(total.RxBytes),
			id.PID,
			id.Name,
		)
	}
}

func (s *sampler) persist(ctx context.Context, snap model.Snapshot, identities map[string]model.ResolvedIdentity) error {
	now := time.Now()
	samples := make([]history.Sample, 0, len(snap))
	for ip, delta := range snap {
		id := identities[ip]
		samples = append(samples, history.Sample{
			Timestamp:   now,
			IP:          ip,
			TxBytes:     delta.TxBytes,
			RxBytes:     delta.RxBytes,
			TxPackets:   delta.TxPackets,
			RxPackets:   delta.RxPackets,
			PID:         id.PID,
			ProcessName: id.Name,
		})
	}
	return s.store.Insert(ctx, samples)
}
