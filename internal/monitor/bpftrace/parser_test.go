package bpftrace

import (
	"testing"

	"github.com/lyh543/ip-traffic-monitor-cli/pkg/model"
)

// feedAll feeds a sequence of lines and collects every completed snapshot.
func feedAll(p *parser, lines []string) []model.Snapshot {
	var out []model.Snapshot
	for _, line := range lines {
		if snap, ok := p.feed(line); ok {
			out = append(out, snap)
		}
	}
	return out
}

func TestParserSingleCycle(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"BPFTRACE_MONITOR_START",
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[8.8.8.8]: 100",
		"STATS_END",
	})

	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	got := snaps[0]["8.8.8.8"]
	want := model.TrafficStats{TxBytes: 100}
	if got != want {
		t.Errorf("8.8.8.8 = %+v, want %+v", got, want)
	}
}

func TestParserDropsPrivateIP(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"BPFTRACE_MONITOR_START",
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[8.8.8.8]: 100",
		"@tx_bytes[10.0.0.1]: 50",
		"STATS_END",
	})

	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if _, ok := snaps[0]["10.0.0.1"]; ok {
		t.Error("private IP 10.0.0.1 should be dropped")
	}
	if _, ok := snaps[0]["8.8.8.8"]; !ok {
		t.Error("public IP 8.8.8.8 should be kept")
	}
}

func TestParserIgnoresLinesBeforeStart(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"Attaching 4 probes...",
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[8.8.8.8]: 100",
		"STATS_END",
	})
	if len(snaps) != 0 {
		t.Fatalf("lines before start marker should be ignored, got %d snapshots", len(snaps))
	}
}

func TestParserAllSections(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"BPFTRACE_MONITOR_START",
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[1.2.3.4]: 10",
		"TX_PACKETS:",
		"@tx_packets[1.2.3.4]: 2",
		"RX_BYTES:",
		"@rx_bytes[1.2.3.4]: 30",
		"RX_PACKETS:",
		"@rx_packets[1.2.3.4]: 4",
		"STATS_END",
	})

	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	want := model.TrafficStats{TxBytes: 10, TxPackets: 2, RxBytes: 30, RxPackets: 4}
	if got := snaps[0]["1.2.3.4"]; got != want {
		t.Errorf("1.2.3.4 = %+v, want %+v", got, want)
	}
}

func TestParserUpdateResetsScratch(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"BPFTRACE_MONITOR_START",
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[1.2.3.4]: 10",
		// 周期被新的 STATS_UPDATE 打断，上面的残留必须被丢弃
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[5.6.7.8]: 20",
		"STATS_END",
	})

	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if _, ok := snaps[0]["1.2.3.4"]; ok {
		t.Error("entries from the interrupted cycle should be discarded")
	}
	if snaps[0]["5.6.7.8"].TxBytes != 20 {
		t.Errorf("5.6.7.8 tx = %d, want 20", snaps[0]["5.6.7.8"].TxBytes)
	}
}

func TestParserEmptyCycleProducesNothing(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"BPFTRACE_MONITOR_START",
		"STATS_UPDATE",
		"TX_BYTES:",
		"STATS_END",
	})
	if len(snaps) != 0 {
		t.Errorf("empty cycle should not produce a snapshot, got %d", len(snaps))
	}
}

func TestParserIgnoresMalformedMapLines(t *testing.T) {
	p := newParser()
	snaps := feedAll(p, []string{
		"BPFTRACE_MONITOR_START",
		"STATS_UPDATE",
		"TX_BYTES:",
		"@tx_bytes[8.8.8.8]: not-a-number",
		"@tx_bytes 8.8.8.8: 5",
		"garbage line",
		"@tx_bytes[9.9.9.9]: 7",
		"STATS_END",
	})
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if len(snaps[0]) != 1 || snaps[0]["9.9.9.9"].TxBytes != 7 {
		t.Errorf("unexpected snapshot: %+v", snaps[0])
	}
}
