package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/exporter"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/geoip"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/history"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/history/sqlite"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/monitor"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/monitor/bpftrace"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/monitor/iftop"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/resolver"
	"github.com/lyh543/ip-traffic-monitor-cli/internal/stats"
	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// Run 装配所有组件并驱动采样循环，阻塞到 ctx 取消或监控时长耗尽。
func Run(ctx context.Context, cfg Config) error {
	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}

	geo := geoip.NewEmpty()
	if cfg.GeoDBPath != "" {
		g, err := geoip.Open(cfg.GeoDBPath)
		if err != nil {
			// 地理信息是增强项，加载失败只降级不中止
			log.Printf("警告：%v", err)
		} else {
			geo = g
		}
	} else {
		log.Printf("未指定 GeoIP 数据库，指标将不包含地理位置信息")
	}

	var store history.Store
	if cfg.DBPath != "" {
		s, err := sqlite.NewStore(cfg.DBPath)
		if err != nil {
			return err
		}
		store = s
		defer store.Close()
	}

	if err := backend.Init(); err != nil {
		return fmt.Errorf("初始化 %s 后端失败：%w", backend.Name(), err)
	}
	defer func() {
		if err := backend.Stop(); err != nil {
			log.Printf("停止后端失败：%v", err)
		}
	}()

	acc := stats.NewAccumulator()
	res := resolver.New()

	s := &sampler{
		backend: backend,
		acc:     acc,
		resolve: res.Resolve,
		store:   store,
		cycles:  totalCycles(cfg),
	}

	loopCtx, loopDone := context.WithCancel(ctx)
	defer loopDone()
	// gctx 在任一 goroutine 出错或采样结束时取消，带动其余部分退出
	g, gctx := errgroup.WithContext(loopCtx)

	if cfg.ListenAddr != "" {
		srv := exporter.NewServer(acc, exporter.Options{
			ListenAddr: cfg.ListenAddr,
			Threshold:  cfg.Threshold,
			Geo:        geo.Lookup,
			Store:      store,
		})
		g.Go(func() error {
			log.Printf("指标服务监听：%s（GET /metrics）", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("指标服务运行失败：%w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer loopDone()
		return s.run(gctx)
	})

	err = g.Wait()
	printSummary(acc.Totals(), s.resolve)
	return err
}

func newBackend(cfg Config) (monitor.Backend, error) {
	switch cfg.Backend {
	case "iftop":
		if cfg.Interface == "" {
			return nil, errors.New("iftop 模式需要指定网卡（-iface 参数）")
		}
		return iftop.New(cfg.Interface, cfg.SampleInterval), nil
	case "bpftrace":
		return bpftrace.New(cfg.SampleInterval, cfg.BpftraceScript), nil
	}
	return nil, fmt.Errorf("不支持的后端：%s，请使用 iftop 或 bpftrace", cfg.Backend)
}

func totalCycles(cfg Config) int {
	if cfg.Duration == 0 || cfg.SampleInterval == 0 {
		return 0
	}
	return cfg.Duration / cfg.SampleInterval
}

// printSummary 在退出前打印累计流量总表，按收发总量降序。
func printSummary(totals model.Snapshot, resolve func(string) model.ResolvedIdentity) {
	if len(totals) == 0 {
		return
	}

	type row struct {
		ip string
		st model.TrafficStats
	}
	rows := make([]row, 0, len(totals))
	for ip, st := range totals {
		rows = append(rows, row{ip: ip, st: st})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].st.Total() > rows[j].st.Total()
	})

	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Remote IP", "TX", "RX", "Total", "PID", "Process"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)

	for _, r := range rows {
		id := resolve(r.ip)
		pid := "-"
		if id.PID > 0 {
			pid = fmt.Sprintf("%d", id.PID)
		}
		t.Append([]string{
			r.ip,
			model.FormatBytes(r.st.TxBytes),
			model.FormatBytes(r.st.RxBytes),
			model.FormatBytes(r.st.Total()),
			pid,
			id.Name,
		})
	}
	fmt.Println("累计流量统计：")
	t.Render()
}
