package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"caucion-alerts/internal/alerting"
)

// SimulateAlert 用一条静态行情走一遍完整的评估与告警链路。
// 模拟从空状态出发，不会读写真实的状态文件。
func (a *App) SimulateAlert(ctx context.Context, days int, rateType string, rate float64) error {
	rt, err := alerting.ParseRateType(rateType)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}
	dispatcher := alerting.NewDispatcher(notifier, a.Logger)

	rules, err := a.Config.Rules()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	snap := alerting.NewSnapshot(now)
	snap.Set(days, rt, decimal.NewFromFloat(rate))

	events, _ := alerting.Evaluate(snap, rules, map[string]alerting.RuleState{}, now)
	if len(events) == 0 {
		a.Logger.Warn().Int("days", days).Str("type", rateType).Msg("没有规则被触发")
		return nil
	}

	for _, res := range dispatcher.Dispatch(ctx, events) {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}
