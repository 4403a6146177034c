package ipfilter

import "net"

// IsPublic 判断文本形式的 IP 是否为公网地址。
// 两个后端看到的都是内核/网卡层面的流量，里面混着广播、组播和内网噪音，
// 这些地址对“主机在和公网上的谁通信”没有意义，统一过滤掉。
func IsPublic(ipText string) bool {
	addr := net.ParseIP(ipText)
	if addr == nil {
		return false
	}

	if v4 := addr.To4(); v4 != nil {
		return isPublicV4(v4)
	}
	return isPublicV6(addr)
}

func isPublicV4(ip net.IP) bool {
	switch {
	case ip[0] == 0: // 0.0.0.0/8 当前网络
		return false
	case ip[0] == 10: // 10.0.0.0/8 私有 A 类
		return false
	case ip[0] == 127: // 127.0.0.0/8 回环
		return false
	case ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31: // 172.16.0.0/12 私有 B 类
		return false
	case ip[0] == 192 && ip[1] == 168: // 192.168.0.0/16 私有 C 类
		return false
	case ip[0] == 169 && ip[1] == 254: // 169.254.0.0/16 链路本地
		return false
	case ip[0] >= 224 && ip[0] <= 239: // 224.0.0.0/4 组播
		return false
	case ip[0] >= 240: // 240.0.0.0/4 保留，含 255.255.255.255 广播
		return false
	}
	return true
}

func isPublicV6(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	if ip.IsLinkLocalUnicast() { // fe80::/10
		return false
	}
	if len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc { // fc00::/7 唯一本地地址
		return false
	}
	return true
}
