package geoip

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oschwald/geoip2-golang"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// 地理信息几乎不变，但长期运行会见到大量不同的远端 IP，
// 缓存必须有界：超过容量淘汰最久未用的，过期后重新查库。
const (
	cacheSize = 4096
	cacheTTL  = 12 * time.Hour
)

// Locator 查询 IP 的地理位置。未加载数据库时所有查询返回 "Unknown"。
type Locator struct {
	reader *geoip2.Reader
	cache  *expirable.LRU[string, model.GeoInfo]
}

// Open 加载 GeoIP2 City 数据库。
func Open(path string) (*Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("GeoIP 数据库加载失败：%w", err)
	}
	log.Printf("GeoIP 数据库加载成功：%s", path)
	return &Locator{
		reader: reader,
		cache:  expirable.NewLRU[string, model.GeoInfo](cacheSize, nil, cacheTTL),
	}, nil
}

// NewEmpty 返回不带数据库的 Locator，所有查询得到 "Unknown"。
func NewEmpty() *Locator {
	return &Locator{}
}

// Lookup 返回 IP 的地理信息，失败时各字段为 "Unknown"，从不报错。
func (l *Locator) Lookup(ipText string) model.GeoInfo {
	if l.reader == nil {
		return model.UnknownGeo()
	}
	if info, ok := l.cache.Get(ipText); ok {
		return info
	}

	info := l.queryDB(ipText)
	l.cache.Add(ipText, info)
	return info
}

func (l *Locator) queryDB(ipText string) model.GeoInfo {
	ip := net.ParseIP(ipText)
	if ip == nil {
		return model.UnknownGeo()
	}
	record, err := l.reader.City(ip)
	if err != nil {
		return model.UnknownGeo()
	}

	info := model.UnknownGeo()
	if name := pickName(record.Country.Names); name != "" {
		info.Country = name
	}
	if len(record.Subdivisions) > 0 {
		if name := pickName(record.Subdivisions[0].Names); name != "" {
			info.Province = name
		}
	}
	if name := pickName(record.City.Names); name != "" {
		info.City = name
	}
	// GeoLite2-City 不含 ISP 信息，需要 ISP 字段的话要换 GeoIP2-ISP 数据库
	return info
}

// pickName 优先取中文名，没有再取英文名。
func pickName(names map[string]string) string {
	if name, ok := names["zh-CN"]; ok {
		return name
	}
	return names["en"]
}
