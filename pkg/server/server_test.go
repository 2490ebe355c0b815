package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(boundary.NewAssembler(testSource), discardLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)
	if s.GetMCPServer() == nil {
		t.Error("NewServer() returned no MCP server")
	}
	if got := len(s.Registry().GetToolNames()); got != 3 {
		t.Errorf("expected 3 registered tools, got %d", got)
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := newTestServer(t)
	in, inWriter := io.Pipe()
	defer inWriter.Close()
	s.SetIO(in, io.Discard)

	done := make(chan error, 1)
	go func() { done <- s.RunWithContext(context.Background()) }()

	s.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunWithContext() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after Shutdown")
	}
	s.WaitForShutdown()
}

func TestServer_ContextCancel(t *testing.T) {
	s := newTestServer(t)
	in, inWriter := io.Pipe()
	defer inWriter.Close()
	s.SetIO(in, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunWithContext(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunWithContext() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestServer_Ping(t *testing.T) {
	s := newTestServer(t)
	in, inWriter := io.Pipe()
	out, outWriter := io.Pipe()
	s.SetIO(in, outWriter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunWithContext(ctx)

	go func() {
		_, _ = io.WriteString(inWriter, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	}()

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(out).ReadString('\n')
		lines <- line
	}()

	select {
	case line := <-lines:
		if !strings.Contains(line, `"id":1`) || !strings.Contains(line, `"result"`) {
			t.Errorf("unexpected response %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no response to ping")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("current process should be running")
	}
	if !isProcessRunning(os.Getppid()) {
		t.Errorf("parent process should be running")
	}
	if isProcessRunning(0) {
		t.Errorf("pid 0 should not be reported as running")
	}
}

func TestIsProcessRunningExitedChild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping subprocess test in short mode")
	}

	cmd := exec.Command("sleep", "0.1")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start subprocess: %v", err)
	}
	pid := cmd.Process.Pid
	if !isProcessRunning(pid) {
		t.Errorf("child process %d should be running initially", pid)
	}
	_ = cmd.Wait()
	if isProcessRunning(pid) {
		t.Errorf("child process %d should not be running after exit", pid)
	}
}

func TestWatchParentStopsWithContext(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.WatchParent(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchParent did not return after cancel")
	}
}
