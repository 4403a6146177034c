package iftop

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// Monitor 是拉取模式的采集后端：每次 Start 同步跑一次 iftop，
// 读完整个文本输出后解析成一个周期的快照。
type Monitor struct {
	iface          string
	sampleInterval int
	localIP        string

	// 注入点，测试里替换成假的 iftop 输出
	runCapture func() (string, error)
}

// New 构造 iftop 后端，iface 是出口网卡名。
func New(iface string, sampleInterval int) *Monitor {
	m := &Monitor{iface: iface, sampleInterval: sampleInterval}
	m.runCapture = m.execIftop
	return m
}

func (m *Monitor) Name() string { return "iftop" }

// Init 解析目标网卡的非回环 IPv4 地址；找不到地址视为启动错误。
func (m *Monitor) Init() error {
	ip, err := m.lookupLocalIP()
	if err != nil {
		return err
	}
	m.localIP = ip
	log.Printf("iftop 监控器初始化成功，本地 IP：%s", ip)
	return nil
}

func (m *Monitor) lookupLocalIP() (string, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("获取网卡列表失败：%w", err)
	}
	for _, ifc := range ifaces {
		if ifc.Name != m.iface {
			continue
		}
		for _, addr := range ifc.Addrs {
			// Addr 形如 192.168.1.5/24
			ip := addr.Addr
			if i := strings.Index(ip, "/"); i >= 0 {
				ip = ip[:i]
			}
			if ip == "" || strings.HasPrefix(ip, "127.") || strings.Contains(ip, ":") {
				continue
			}
			return ip, nil
		}
	}
	return "", fmt.Errorf("无法获取网卡 %s 的 IP 地址", m.iface)
}

// Start 跑一次 iftop 采集（阻塞整个采样时长），解析输出返回快照。
func (m *Monitor) Start() (model.Snapshot, error) {
	output, err := m.runCapture()
	if err != nil {
		return nil, fmt.Errorf("执行 iftop 失败：%w", err)
	}
	return parseOutput(output, m.localIP, m.sampleInterval), nil
}

// Stop 无事可做：iftop 在 Start 内同步跑完就退出了。
func (m *Monitor) Stop() error { return nil }

func (m *Monitor) execIftop() (string, error) {
	cmd := exec.Command("iftop",
		"-i", m.iface,
		"-t",
		"-s", strconv.Itoa(m.sampleInterval),
		"-n",
		"-N",
	)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
