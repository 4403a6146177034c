package resolver

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := newTTLCache[string, int](10 * time.Second)

	base := time.Now()
	current := base
	c.now = func() time.Time { return current }

	c.set("1.2.3.4", 42)

	// ttl-1：仍然有效
	current = base.Add(9 * time.Second)
	if v, ok := c.get("1.2.3.4"); !ok || v != 42 {
		t.Errorf("entry should be valid at ttl-1: (%v, %v)", v, ok)
	}

	// ttl+1：视为不存在
	current = base.Add(11 * time.Second)
	if _, ok := c.get("1.2.3.4"); ok {
		t.Error("entry should be expired at ttl+1")
	}

	// 过期条目被替换而不是续期：重新写入后的起点是新插入时间
	c.set("1.2.3.4", 7)
	current = current.Add(9 * time.Second)
	if v, ok := c.get("1.2.3.4"); !ok || v != 7 {
		t.Errorf("re-inserted entry should be valid: (%v, %v)", v, ok)
	}
}

func TestTTLCacheMiss(t *testing.T) {
	c := newTTLCache[string, int](time.Second)
	if _, ok := c.get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestTTLCacheZeroValue(t *testing.T) {
	// PID 为 0 的“未找到”也要能缓存
	c := newTTLCache[string, int](time.Minute)
	c.set("1.2.3.4", 0)
	if v, ok := c.get("1.2.3.4"); !ok || v != 0 {
		t.Errorf("negative entry should be cached: (%v, %v)", v, ok)
	}
}
