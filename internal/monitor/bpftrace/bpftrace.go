package bpftrace

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

const (
	tempScriptPath = "/tmp/ip_traffic_monitor_bpftrace.bt"

	// Start 等待新快照的宽限时间：脚本每个上报间隔之外再多等这么久。
	startGrace = 5 * time.Second
)

// Monitor 是推送模式的采集后端：常驻的 bpftrace 进程按固定间隔把各 IP 的
// 计数打到 stdout，一个专职 reader goroutine 持续解析并通过 channel 交给消费者。
type Monitor struct {
	sampleInterval int
	scriptPath     string

	cmd     *exec.Cmd
	running atomic.Bool
	snapCh  chan model.Snapshot
	done    chan struct{}

	stopOnce sync.Once
}

// New 构造 bpftrace 后端。scriptPath 非空时使用外部脚本，否则使用内置生成的脚本。
func New(sampleInterval int, scriptPath string) *Monitor {
	return &Monitor{
		sampleInterval: sampleInterval,
		scriptPath:     scriptPath,
		snapCh:         make(chan model.Snapshot, 1),
		done:           make(chan struct{}),
	}
}

func (m *Monitor) Name() string { return "bpftrace" }

// generateScript 生成内置 bpftrace 脚本：按 IP 聚合收发字节数与包数，
// 每个采样间隔打印一轮并清空内核侧的 map。
func (m *Monitor) generateScript() string {
	return fmt.Sprintf(`
BEGIN {
    printf("%s\n");
}

tracepoint:net:netif_receive_skb
{
    $skb = (struct sk_buff *)args->skbaddr;
    $iph = (struct iphdr *)($skb->head + $skb->network_header);
    $saddr = $iph->saddr;
    $len = args->len;

    @rx_bytes[ntop($saddr)] = sum($len);
    @rx_packets[ntop($saddr)] = count();
}

tracepoint:net:net_dev_start_xmit
{
    $skb = (struct sk_buff *)args->skbaddr;
    $iph = (struct iphdr *)($skb->head + $skb->network_header);
    $daddr = $iph->daddr;
    $len = args->len;

    @tx_bytes[ntop($daddr)] = sum($len);
    @tx_packets[ntop($daddr)] = count();
}

interval:s:%d {
    printf("%s\n");
    printf("TX_BYTES:\n");
    print(@tx_bytes);
    printf("TX_PACKETS:\n");
    print(@tx_packets);
    printf("RX_BYTES:\n");
    print(@rx_bytes);
    printf("RX_PACKETS:\n");
    print(@rx_packets);
    printf("%s\n");

    clear(@tx_bytes);
    clear(@tx_packets);
    clear(@rx_bytes);
    clear(@rx_packets);
}
`, markerStart, m.sampleInterval, markerUpdate, markerEnd)
}

// Init 探测 bpftrace 是否可用，落盘脚本并启动常驻子进程与 reader goroutine。
// 返回前会等待一个上报间隔，让探针完成挂载，保证第一次 Start 拿到的是可信数据。
func (m *Monitor) Init() error {
	out, err := exec.Command("bpftrace", "--version").Output()
	if err != nil {
		return fmt.Errorf("bpftrace 不可用：%w（请确认已安装 bpftrace）", err)
	}
	log.Printf("bpftrace 监控器初始化：%s", strings.TrimSpace(string(out)))

	script := m.generateScript()
	if m.scriptPath != "" {
		content, err := os.ReadFile(m.scriptPath)
		if err != nil {
			return fmt.Errorf("读取自定义脚本失败：%w", err)
		}
		script = string(content)
	}
	if err := os.WriteFile(tempScriptPath, []byte(script), 0o600); err != nil {
		return fmt.Errorf("写入脚本文件失败：%w", err)
	}

	// stdbuf 关闭 stdout 缓冲，否则低流量时上报会被缓冲住迟迟读不到。
	cmd := exec.Command("stdbuf", "-o0", "-e0", "bpftrace", "-B", "none", tempScriptPath)
	cmd.Stdin = nil
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("获取 bpftrace stdout 失败：%w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 bpftrace 失败：%w", err)
	}

	m.cmd = cmd
	m.running.Store(true)
	go m.readLoop(stdout)

	warmup := time.Duration(m.sampleInterval+1) * time.Second
	log.Printf("等待 bpftrace 挂载探针（%v）...", warmup)
	time.Sleep(warmup)
	return nil
}

// readLoop 持续读取 bpftrace 输出直到停止标志置位或管道关闭。
// 发送侧保证 reader 永远不被慢消费者阻塞：channel 满时丢掉旧快照、保留最新。
func (m *Monitor) readLoop(stdout io.Reader) {
	defer close(m.done)

	p := newParser()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if !m.running.Load() {
			return
		}
		snap, ok := p.feed(scanner.Text())
		if !ok {
			continue
		}
		select {
		case m.snapCh <- snap:
		default:
			select {
			case <-m.snapCh:
			default:
			}
			select {
			case m.snapCh <- snap:
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil && m.running.Load() {
		log.Printf("读取 bpftrace 输出失败：%v", err)
	}
}

// Start 返回最新一个完整周期的快照。channel 里积压了多个时只保留最新的
// （调用方要的是当前状态，不是历史积压）；没有待取数据时最多阻塞
// 一个采样间隔加宽限，超时返回空快照——安静的网络不是错误。
func (m *Monitor) Start() (model.Snapshot, error) {
	var latest model.Snapshot
	for {
		select {
		case snap := <-m.snapCh:
			latest = snap
			continue
		default:
		}
		break
	}
	if latest != nil {
		return latest, nil
	}

	timeout := time.Duration(m.sampleInterval)*time.Second + startGrace
	select {
	case snap := <-m.snapCh:
		return snap, nil
	case <-time.After(timeout):
		log.Printf("等待 bpftrace 统计数据超时（%v），返回空数据", timeout)
		return model.Snapshot{}, nil
	}
}

// Stop 通知 reader 退出、杀掉子进程并等两者结束。可重复调用。
func (m *Monitor) Stop() error {
	m.stopOnce.Do(func() {
		m.running.Store(false)
		if m.cmd == nil {
			return
		}
		if m.cmd.Process != nil {
			// 先杀进程让 stdout 关闭，reader 才能从 Scan 返回。
			_ = m.cmd.Process.Kill()
		}
		<-m.done
		_ = m.cmd.Wait()
	})
	return nil
}
