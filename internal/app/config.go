package app

// Config 由命令行层填充。
type Config struct {
	// Backend 是后端选择：iftop 或 bpftrace
	Backend string
	// Interface 是出口网卡名，iftop 模式必填
	Interface string
	// SampleInterval 是采样间隔（秒）
	SampleInterval int
	// Duration 是监控时长（秒），0 表示永久运行
	Duration int
	// BpftraceScript 是自定义 bpftrace 脚本路径，空则使用内置脚本
	BpftraceScript string
	// GeoDBPath 是 GeoIP2 City 数据库路径，空则指标不带地理信息
	GeoDBPath string
	// ListenAddr 是指标服务监听地址，空则不启动指标服务
	ListenAddr string
	// Threshold 是指标导出阈值（字节），累计流量不超过它的 IP 不导出
	Threshold uint64
	// DBPath 是历史记录 SQLite 文件路径，空则不落盘
	DBPath string
}
