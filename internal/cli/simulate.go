package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateDays int
	simulateType string
	simulateRate float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条行情并触发匹配的告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateDays <= 0 {
			return errors.New("--days 必须大于 0")
		}
		if simulateRate <= 0 {
			return errors.New("--rate 必须大于 0")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateDays, simulateType, simulateRate)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateDays, "days", 1, "模拟的 caución 期限 (天)")
	simulateCmd.Flags().StringVar(&simulateType, "type", "colocador", "模拟的利率类型 (colocador/tomador)")
	simulateCmd.Flags().Float64Var(&simulateRate, "rate", 0, "模拟的利率 (%)")
}
