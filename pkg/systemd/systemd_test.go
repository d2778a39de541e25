package systemd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	logx "keysendnotifier/pkg/logx"
)

func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func readState(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read notify socket: %v", err)
	}
	return string(buf[:n])
}

func TestNotifyStates(t *testing.T) {
	conn := listenNotify(t)

	if err := Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if got := readState(t, conn); got != "READY=1" {
		t.Fatalf("state = %q", got)
	}
	if err := Status("processing"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := readState(t, conn); got != "STATUS=processing" {
		t.Fatalf("state = %q", got)
	}
	if err := Stopping(); err != nil {
		t.Fatalf("Stopping: %v", err)
	}
	if got := readState(t, conn); got != "STOPPING=1" {
		t.Fatalf("state = %q", got)
	}
}

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if err := Ready(); err != nil {
		t.Fatalf("Ready without socket: %v", err)
	}
}

func TestWatchdogDisabledReturnsImmediately(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Watchdog(ctx, nil, logx.Nop()); err != nil {
		t.Fatalf("Watchdog: %v", err)
	}
}

func TestWatchdogPingsWhileHealthy(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", "100000")
	t.Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watchdog(ctx, func() bool { return true }, logx.Nop()) }()

	if got := readState(t, conn); got != "WATCHDOG=1" {
		t.Fatalf("state = %q", got)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Watchdog err = %v", err)
	}
}
