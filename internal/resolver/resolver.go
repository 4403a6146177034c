package resolver

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

const (
	// 连接表只反映当前打开的 TCP 连接，几秒就会过时
	connTableTTL = 3 * time.Second

	// 全进程 fd 扫描是 O(进程数 × fd 数) 的开销，IP -> PID 的结果缓存一小时；
	// 进程名对一个 PID 的生命周期几乎不变，同样缓存一小时
	pidCacheTTL  = time.Hour
	nameCacheTTL = time.Hour
)

// Resolver 把远端 IP 归属到本机进程：
// /proc/net/tcp{,6} 给出 远端地址 -> socket inode，再扫 /proc/*/fd 找持有
// 该 inode 的进程。三层缓存各自持锁：连接表（短 TTL）、IP->PID（长 TTL，
// 未找到也缓存）、PID->进程名。任何一步失败都归为“未归属”，不报错。
type Resolver struct {
	procRoot string

	mu          sync.Mutex
	connTable   map[string]uint64 // 远端 IP -> socket inode
	connBuiltAt time.Time

	pidCache  *ttlCache[string, int]
	nameCache *ttlCache[int, string]

	now      func() time.Time
	procName func(pid int) string
}

// New 构造一个从 /proc 读取连接与进程信息的 Resolver。
func New() *Resolver {
	r := &Resolver{
		procRoot:  "/proc",
		connTable: make(map[string]uint64),
		pidCache:  newTTLCache[string, int](pidCacheTTL),
		nameCache: newTTLCache[int, string](nameCacheTTL),
		now:       time.Now,
	}
	r.procName = lookupProcessName
	return r
}

// Resolve 返回 IP 对应的本机进程。PID 为 0 表示未能归属，这是正常结果而非错误。
func (r *Resolver) Resolve(ip string) model.ResolvedIdentity {
	pid, ok := r.pidCache.get(ip)
	if !ok {
		pid = r.resolvePID(ip)
		r.pidCache.set(ip, pid)
	}
	if pid == 0 {
		return model.ResolvedIdentity{}
	}

	name, ok := r.nameCache.get(pid)
	if !ok {
		name = r.procName(pid)
		r.nameCache.set(pid, name)
	}
	return model.ResolvedIdentity{PID: pid, Name: name}
}

func (r *Resolver) resolvePID(ip string) int {
	inode, ok := r.lookupInode(ip)
	if !ok {
		return 0
	}
	return r.scanProcessFDs(inode)
}

func (r *Resolver) lookupInode(ip string) (uint64, bool) {
	r.mu.Lock()
	stale := r.now().Sub(r.connBuiltAt) >= connTableTTL
	r.mu.Unlock()

	if stale {
		// 读 /proc 不持锁，读完整体换掉
		table := r.buildConnTable()
		r.mu.Lock()
		r.connTable = table
		r.connBuiltAt = r.now()
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	inode, ok := r.connTable[ip]
	return inode, ok
}

// buildConnTable 重建 远端IP -> inode 映射，开销是 O(打开的 TCP 连接数)。
func (r *Resolver) buildConnTable() map[string]uint64 {
	table := make(map[string]uint64)
	for _, name := range []string{"net/tcp", "net/tcp6"} {
		parseConnFile(filepath.Join(r.procRoot, name), table)
	}
	return table
}

func parseConnFile(path string, table map[string]uint64) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // 表头
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		ip, ok := parseHexAddr(fields[2])
		if !ok {
			continue
		}
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil || inode == 0 {
			continue
		}
		if _, exists := table[ip]; !exists {
			table[ip] = inode
		}
	}
}

// parseHexAddr 解析 /proc/net/tcp 的地址字段（HEXIP:HEXPORT）。
// 内核按主机字节序存每个 32 位字，小端机器上要按 4 字节一组反转。
func parseHexAddr(field string) (string, bool) {
	hexIP, _, ok := strings.Cut(field, ":")
	if !ok {
		return "", false
	}
	raw, err := hex.DecodeString(hexIP)
	if err != nil {
		return "", false
	}
	switch len(raw) {
	case 4:
		return fmt.Sprintf("%d.%d.%d.%d", raw[3], raw[2], raw[1], raw[0]), true
	case 16:
		ip := make(net.IP, 16)
		for i := 0; i < 16; i += 4 {
			ip[i] = raw[i+3]
			ip[i+1] = raw[i+2]
			ip[i+2] = raw[i+1]
			ip[i+3] = raw[i]
		}
		return ip.String(), true
	}
	return "", false
}

// scanProcessFDs 扫描所有进程的 fd，找持有 socket:[inode] 的进程。
// O(进程数 × fd 数)，所以结果由 pidCache 长期缓存。进程在扫描途中退出
// 只会让对应目录读取失败，跳过即可。
func (r *Resolver) scanProcessFDs(inode uint64) int {
	target := fmt.Sprintf("socket:[%d]", inode)

	procs, err := os.ReadDir(r.procRoot)
	if err != nil {
		return 0
	}
	for _, p := range procs {
		pid, err := strconv.Atoi(p.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join(r.procRoot, p.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if link == target {
				return pid
			}
		}
	}
	return 0
}

func lookupProcessName(pid int) string {
	p, err := ps.FindProcess(pid)
	if err != nil || p == nil {
		return ""
	}
	return p.Executable()
}
