package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wonny/aegis-strategy/internal/pkg/jsonfile"
	"github.com/wonny/aegis-strategy/internal/pkg/pidfile"
	"github.com/wonny/aegis-strategy/internal/service/scheduler"
)

// API 서버가 상태를 저장하고 종료할 때까지 기다리는 시간
const stopTimeout = 35 * time.Second

var (
	startFresh bool
	stopClear  bool
)

// backendCmd backend 서브커맨드
var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Backend 서버 관리",
	Long: `Backend API 서버를 관리합니다 (전략 스케줄러, 스냅샷 cron, HTTP API).

Examples:
  go run ./cmd/quant backend start           # 저장된 스케줄러 상태로 시작
  go run ./cmd/quant backend start --fresh   # 저장 상태 삭제 후 정지 상태로 시작
  go run ./cmd/quant backend status          # 실행 여부와 저장된 상태 확인
  go run ./cmd/quant backend stop            # 종료 (상태 저장, 청산 없음)`,
}

var backendStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Backend 서버 시작",
	Long: `Backend 서버를 시작합니다. 스케줄러가 실행 중에 종료됐다면 저장된 상태로 재개됩니다.
Ctrl+C로 종료하면 상태가 저장되고 포지션은 청산되지 않습니다.`,
	RunE: runBackendStart,
}

var backendStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Backend 서버 종료",
	Long:  `pid 파일로 실행 중인 API 서버를 찾아 SIGTERM으로 종료합니다.`,
	RunE:  runBackendStop,
}

var backendStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Backend 상태 확인",
	RunE:  runBackendStatus,
}

func init() {
	backendStartCmd.Flags().BoolVar(&startFresh, "fresh", false, "clear the saved scheduler state so the server starts stopped")
	backendStopCmd.Flags().BoolVar(&stopClear, "clear-state", false, "clear the saved scheduler state after shutdown")

	backendCmd.AddCommand(backendStartCmd)
	backendCmd.AddCommand(backendStopCmd)
	backendCmd.AddCommand(backendStatusCmd)
}

func runBackendStart(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pidPath := cfg.Scheduler.PIDPath()

	if err := stopBackend(out, pidPath, stopTimeout); err != nil && !errors.Is(err, errNotRunning) {
		return err
	}

	if startFresh {
		if err := jsonfile.Remove(cfg.Scheduler.StatePath()); err != nil {
			return fmt.Errorf("clear scheduler state: %w", err)
		}
	}
	state, _, err := scheduler.ReadState(cfg.Scheduler.StatePath())
	if err != nil {
		fmt.Fprintf(out, "⚠️  저장된 상태를 읽을 수 없음: %v\n", err)
	}

	fmt.Fprintln(out, "🚀 Backend 서버 시작...")
	fmt.Fprintf(out, "   - API 서버 (포트: %s, dry-run: %v)\n", cfg.Server.Port, cfg.Scheduler.DryRun)
	fmt.Fprintf(out, "   - 스케줄러: %s\n", describeState(state))

	apiCmd := exec.Command("go", "run", "./cmd/api")
	apiCmd.Stdout = os.Stdout
	apiCmd.Stderr = os.Stderr
	apiCmd.Env = os.Environ()
	if err := apiCmd.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- apiCmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("API server exited: %w", err)
		}
		return nil
	case <-sigCh:
	}

	fmt.Fprintln(out, "\n🛑 종료 신호 수신, 상태 저장 후 종료 중...")

	// go run 은 SIGTERM 을 자식에게 넘기지 않으므로 API 프로세스에 직접 보냄
	if err := stopBackend(out, pidPath, stopTimeout); err != nil {
		_ = apiCmd.Process.Signal(syscall.SIGTERM)
	}
	<-done

	fmt.Fprintln(out, "✅ Backend 서버 종료 완료")
	return nil
}

func runBackendStop(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	err := stopBackend(out, cfg.Scheduler.PIDPath(), stopTimeout)
	switch {
	case errors.Is(err, errNotRunning):
		fmt.Fprintln(out, "실행 중인 Backend 서버 없음")
	case err != nil:
		return err
	default:
		fmt.Fprintln(out, "✅ Backend 서버 종료 완료 (스케줄러 상태 저장됨)")
	}

	if stopClear {
		if err := jsonfile.Remove(cfg.Scheduler.StatePath()); err != nil {
			return fmt.Errorf("clear scheduler state: %w", err)
		}
		fmt.Fprintln(out, "저장된 스케줄러 상태 삭제, 다음 시작은 정지 상태")
	}
	return nil
}

func runBackendStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	pid, found, err := pidfile.Read(cfg.Scheduler.PIDPath())
	switch {
	case err != nil:
		fmt.Fprintf(out, "API 서버: 알 수 없음 (%v)\n", err)
	case found && pidfile.Alive(pid):
		fmt.Fprintf(out, "API 서버: 실행 중 (PID: %d)\n", pid)
	default:
		fmt.Fprintln(out, "API 서버: 정지")
	}

	state, _, err := scheduler.ReadState(cfg.Scheduler.StatePath())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "저장된 스케줄러 상태: %s\n", describeState(state))
	return nil
}

var errNotRunning = errors.New("backend not running")

// stopBackend sends SIGTERM to the recorded API server and waits for it to exit.
// The server saves its scheduler state on SIGTERM. A stale pid file is removed.
func stopBackend(out io.Writer, pidPath string, timeout time.Duration) error {
	pid, found, err := pidfile.Read(pidPath)
	if err != nil {
		return err
	}
	if !found {
		return errNotRunning
	}
	if !pidfile.Alive(pid) {
		_ = os.Remove(pidPath)
		return errNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	fmt.Fprintf(out, "기존 백엔드 프로세스 종료 (PID: %d)\n", pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for pidfile.Alive(pid) {
		if time.Now().After(deadline) {
			fmt.Fprintf(out, "⚠️  %s 내 종료되지 않아 강제 종료 (PID: %d)\n", timeout, pid)
			_ = proc.Signal(syscall.SIGKILL)
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = os.Remove(pidPath)
	return nil
}

// describeState summarizes a saved scheduler checkpoint for the console
func describeState(state *scheduler.RunState) string {
	if state == nil || !state.Running {
		return "정지 (저장된 실행 상태 없음)"
	}
	if len(state.EnabledStrategies) == 0 {
		return "정지 (활성 전략 없음)"
	}
	return fmt.Sprintf("재개 예정 [%s] (보유 포지션 %d)",
		strings.Join(state.EnabledStrategies, ", "), len(state.CurrentPositions))
}
