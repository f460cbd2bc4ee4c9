package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/wonny/aegis-strategy/internal/app"
	"github.com/wonny/aegis-strategy/internal/service/snapshot"
)

var changeCurrent string

// snapshotCmd snapshot 서브커맨드
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "일별 수익률 스냅샷 관리",
	Long: `전략별 누적 수익률 스냅샷을 저장하고 조회합니다.

Examples:
  go run ./cmd/quant snapshot take
  go run ./cmd/quant snapshot strategies
  go run ./cmd/quant snapshot history momentum
  go run ./cmd/quant snapshot change ALL --current=3.2`,
}

var snapshotTakeCmd = &cobra.Command{
	Use:   "take",
	Short: "현재 수익률로 오늘 스냅샷 저장",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotTake,
}

var snapshotStrategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "스냅샷에 기록된 전략 목록",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotStrategies,
}

var snapshotHistoryCmd = &cobra.Command{
	Use:   "history <strategy>",
	Short: "전략의 누적 수익률 추이",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotHistory,
}

var snapshotChangeCmd = &cobra.Command{
	Use:   "change <strategy|ALL>",
	Short: "전일/전주 대비 변화",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotChange,
}

func init() {
	snapshotChangeCmd.Flags().StringVar(&changeCurrent, "current", "", "current cumulative return (%); fetched live when omitted")

	snapshotCmd.AddCommand(snapshotTakeCmd)
	snapshotCmd.AddCommand(snapshotStrategiesCmd)
	snapshotCmd.AddCommand(snapshotHistoryCmd)
	snapshotCmd.AddCommand(snapshotChangeCmd)
}

func runSnapshotTake(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	broker, err := app.OpenBroker(cfg)
	if err != nil {
		return err
	}

	saved, err := snapshot.NewService(l, broker.Quotes, app.NewClock(cfg)).TakeDailySnapshot(cmd.Context())
	if err != nil {
		return err
	}
	if !saved {
		fmt.Println("⏭️  거래일이 아니어서 건너뜀")
		return nil
	}

	fmt.Println("✅ 스냅샷 저장 완료")
	return nil
}

func runSnapshotStrategies(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	names := l.AllStrategies()
	if asJSON {
		if names == nil {
			names = []string{}
		}
		return printJSON(names)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runSnapshotHistory(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	history := l.ReturnHistory(args[0])
	if asJSON {
		return printJSON(history)
	}
	if len(history) == 0 {
		fmt.Printf("기록 없음 (strategy=%s)\n", args[0])
		return nil
	}

	rows := make([]string, 0, len(history))
	for _, p := range history {
		rows = append(rows, fmt.Sprintf("%s\t%.2f", p.Date, p.ReturnRate))
	}
	return printTable(os.Stdout, "DATE\tRETURN(%)", rows)
}

func runSnapshotChange(cmd *cobra.Command, args []string) error {
	key := args[0]

	l, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	var current float64
	if changeCurrent != "" {
		current, err = strconv.ParseFloat(changeCurrent, 64)
		if err != nil {
			return fmt.Errorf("invalid --current: %q", changeCurrent)
		}
	} else {
		broker, err := app.OpenBroker(cfg)
		if err != nil {
			return err
		}
		current = l.CurrentReturns(cmd.Context(), broker.Quotes)[key]
	}

	daily, weekly := l.DailyChange(key, current), l.WeeklyChange(key, current)
	if asJSON {
		return printJSON(map[string]interface{}{
			"strategy": key,
			"current":  current,
			"daily":    daily,
			"weekly":   weekly,
		})
	}

	fmt.Printf("📈 %s 현재: %.2f%%\n", key, current)
	if daily.OK {
		fmt.Printf("   전일 대비: %+.2f%%p\n", daily.Value)
	} else {
		fmt.Println("   전일 대비: 기준 없음")
	}
	if weekly.OK {
		fmt.Printf("   전주 대비: %+.2f%%p (기준일 %s)\n", weekly.Value, weekly.BaseDate)
	} else {
		fmt.Println("   전주 대비: 기준 없음")
	}
	return nil
}
