package bpftrace

import (
	"strings"
	"testing"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

func TestStartDrainsLatestSnapshot(t *testing.T) {
	m := New(2, "")

	m.snapCh <- model.Snapshot{"1.2.3.4": {TxBytes: 1}}

	snap, err := m.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap["1.2.3.4"].TxBytes != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestLatestWinsSend(t *testing.T) {
	m := New(2, "")

	// 模拟 reader 的 latest-wins 发送：channel 已满时换成最新快照
	send := func(snap model.Snapshot) {
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

	send(model.Snapshot{"1.1.1.1": {TxBytes: 1}})
	send(model.Snapshot{"2.2.2.2": {TxBytes: 2}})

	snap, err := m.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, ok := snap["2.2.2.2"]; !ok {
		t.Errorf("expected the newest snapshot to win, got %+v", snap)
	}
}

func TestGenerateScriptContainsMarkers(t *testing.T) {
	m := New(3, "")
	script := m.generateScript()
	for _, marker := range []string{markerStart, markerUpdate, markerEnd, "interval:s:3"} {
		if !strings.Contains(script, marker) {
			t.Errorf("generated script missing %q", marker)
		}
	}
}
