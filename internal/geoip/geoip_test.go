package geoip

import (
	"testing"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

func TestLookupWithoutDatabase(t *testing.T) {
	l := NewEmpty()
	info := l.Lookup("8.8.8.8")
	if info != model.UnknownGeo() {
		t.Errorf("expected all-Unknown without database, got %+v", info)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open("/nonexistent/GeoLite2-City.mmdb"); err == nil {
		t.Error("expected error for missing database file")
	}
}

func TestPickName(t *testing.T) {
	if got := pickName(map[string]string{"zh-CN": "美国", "en": "United States"}); got != "美国" {
		t.Errorf("pickName should prefer zh-CN, got %q", got)
	}
	if got := pickName(map[string]string{"en": "United States"}); got != "United States" {
		t.Errorf("pickName should fall back to en, got %q", got)
	}
	if got := pickName(nil); got != "" {
		t.Errorf("pickName(nil) = %q, want empty", got)
	}
}
