package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/app"
)

func main() {
	var cfg app.Config
	var thresholdMiB float64
	flag.StringVar(&cfg.Backend, "backend", "iftop", "监控后端：iftop 或 bpftrace")
	flag.StringVar(&cfg.Interface, "iface", "", "出口网卡名（iftop 模式必填），示例：eth0、ens33、enp2s0")
	flag.IntVar(&cfg.SampleInterval, "sample-interval", 2, "采样间隔（秒）")
	flag.IntVar(&cfg.Duration, "duration", 30, "监控时长（秒），0 表示永久运行")
	flag.StringVar(&cfg.BpftraceScript, "bpftrace-script", "", "自定义 bpftrace 脚本路径（仅 bpftrace 模式）")
	flag.StringVar(&cfg.GeoDBPath, "geoip-db", "", "GeoIP2 City 数据库路径，例如：GeoLite2-City.mmdb")
	flag.StringVar(&cfg.ListenAddr, "listen", ":9090", "指标服务监听地址，空字符串表示不启动")
	flag.Float64Var(&thresholdMiB, "export-threshold-mib", 1, "指标导出阈值（MiB），累计流量不超过它的 IP 不导出")
	flag.StringVar(&cfg.DBPath, "db", "", "历史记录 SQLite 文件路径，空表示不落盘")
	flag.Parse()

	cfg.Threshold = uint64(thresholdMiB * 1024 * 1024)

	if cfg.SampleInterval <= 0 {
		fmt.Fprintln(os.Stderr, "sample-interval 必须大于 0")
		os.Exit(2)
	}

	// 两个后端都要读内核数据（bpftrace 探针 / iftop 抓包），必须 root
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "此程序需要 root 权限运行，请使用 sudo 执行")
		os.Exit(1)
	}

	log.Printf("IP 流量监控工具（后端：%s）", cfg.Backend)
	if cfg.Duration == 0 {
		log.Printf("监控模式：永久运行，采样间隔：%d 秒（按 Ctrl+C 停止）", cfg.SampleInterval)
	} else {
		log.Printf("监控时长：%d 秒，采样间隔：%d 秒", cfg.Duration, cfg.SampleInterval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Printf("监控退出：%v", err)
		os.Exit(1)
	}
}
