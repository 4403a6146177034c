package resolver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseHexAddr(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		// /proc/net/tcp 按小端存 IPv4：1.2.3.4 -> 04030201
		{"04030201:01BB", "1.2.3.4", true},
		{"08080808:0050", "8.8.8.8", true},
		{"0100007F:1F90", "127.0.0.1", true},
		{"garbage", "", false},
		{"zzzz:0050", "", false},
	}
	for _, c := range cases {
		got, ok := parseHexAddr(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("parseHexAddr(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

// writeFakeProc builds a minimal /proc replica: one TCP connection to
// 8.8.8.8 with inode 12345, held by pid 4242.
func writeFakeProc(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "net"), 0o755); err != nil {
		t.Fatal(err)
	}
	tcp := "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n" +
		"   0: 0500A8C0:D2F0 08080808:01BB 01 00000000:00000000 00:00000000 00000000  1000        0 12345 1\n"
	if err := os.WriteFile(filepath.Join(root, "net", "tcp"), []byte(tcp), 0o644); err != nil {
		t.Fatal(err)
	}

	fdDir := filepath.Join(root, "4242", "fd")
	if err := os.MkdirAll(fdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// 指向不存在目标的符号链接，Readlink 仍返回 socket:[12345]
	if err := os.Symlink("socket:[12345]", filepath.Join(fdDir, "3")); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestResolveFindsOwningProcess(t *testing.T) {
	r := New()
	r.procRoot = writeFakeProc(t)
	r.procName = func(pid int) string {
		if pid == 4242 {
			return "curl"
		}
		return ""
	}

	id := r.Resolve("8.8.8.8")
	if id.PID != 4242 {
		t.Errorf("PID = %d, want 4242", id.PID)
	}
	if id.Name != "curl" {
		t.Errorf("Name = %q, want curl", id.Name)
	}
}

func TestResolveUnknownIPIsUnresolved(t *testing.T) {
	r := New()
	r.procRoot = writeFakeProc(t)
	r.procName = func(int) string { return "should-not-be-called" }

	id := r.Resolve("9.9.9.9")
	if id.PID != 0 || id.Name != "" {
		t.Errorf("expected unresolved identity, got %+v", id)
	}
}

func TestResolveCachesPIDLookup(t *testing.T) {
	r := New()
	r.procRoot = writeFakeProc(t)
	nameCalls := 0
	r.procName = func(pid int) string {
		nameCalls++
		return "curl"
	}

	r.Resolve("8.8.8.8")

	// 删掉 fd 目录后再查仍命中缓存
	if err := os.RemoveAll(filepath.Join(r.procRoot, "4242")); err != nil {
		t.Fatal(err)
	}
	id := r.Resolve("8.8.8.8")
	if id.PID != 4242 {
		t.Errorf("cached PID = %d, want 4242", id.PID)
	}
	if nameCalls != 1 {
		t.Errorf("process name should be cached, lookups = %d", nameCalls)
	}
}

func TestResolveVanishedProcess(t *testing.T) {
	r := New()
	root := writeFakeProc(t)
	r.procRoot = root
	r.procName = func(int) string { return "" }

	// 连接表有记录但没有进程持有该 inode：进程已退出，按未归属处理
	if err := os.RemoveAll(filepath.Join(root, "4242")); err != nil {
		t.Fatal(err)
	}
	id := r.Resolve("8.8.8.8")
	if id.PID != 0 {
		t.Errorf("expected unresolved, got %+v", id)
	}
}
