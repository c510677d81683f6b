package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"caucion-alerts/internal/alerting"
	"caucion-alerts/internal/fetcher"
	"caucion-alerts/internal/storage"
)

type staticFetcher struct {
	snap alerting.Snapshot
	err  error
}

func (f *staticFetcher) FetchRates(ctx context.Context) (alerting.Snapshot, error) {
	if f.err != nil {
		return alerting.Snapshot{}, f.err
	}
	return f.snap, nil
}

type memoryStateStore struct {
	state map[string]alerting.RuleState
	locks int
	saves int
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{state: map[string]alerting.RuleState{}}
}

func (m *memoryStateStore) Acquire() (func(), error) {
	m.locks++
	return func() { m.locks-- }, nil
}

func (m *memoryStateStore) Load() (map[string]alerting.RuleState, error) {
	out := make(map[string]alerting.RuleState, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStateStore) Save(state map[string]alerting.RuleState) error {
	m.saves++
	m.state = state
	return nil
}

var _ storage.StateStore = (*memoryStateStore)(nil)

type countingNotifier struct {
	errs  map[int]error
	calls int
}

func (n *countingNotifier) Notify(ctx context.Context, text string) error {
	err := n.errs[n.calls]
	n.calls++
	return err
}

func testRules() []alerting.Rule {
	return []alerting.Rule{
		{Days: 1, Type: alerting.RateColocador, Condition: alerting.CondGTE, TargetRate: decimal.RequireFromString("30"), Enabled: true},
		{Days: 7, Type: alerting.RateTomador, Condition: alerting.CondLTE, TargetRate: decimal.RequireFromString("25"), Enabled: true},
	}
}

func hotSnapshot() alerting.Snapshot {
	snap := alerting.NewSnapshot(time.Now().UTC())
	snap.Set(1, alerting.RateColocador, decimal.RequireFromString("35"))
	snap.Set(7, alerting.RateTomador, decimal.RequireFromString("20"))
	return snap
}

func newService(f fetcher.RateFetcher, states storage.StateStore, notifier alerting.Notifier) *Service {
	var dispatcher *alerting.Dispatcher
	if notifier != nil {
		dispatcher = alerting.NewDispatcher(notifier, zerolog.Nop())
	}
	return New(testRules(), f, states, dispatcher, nil, nil, zerolog.Nop())
}

func TestRunCheckNotifiesOnceAcrossRuns(t *testing.T) {
	states := newMemoryStateStore()
	notifier := &countingNotifier{}
	svc := newService(&staticFetcher{snap: hotSnapshot()}, states, notifier)

	for i := 0; i < 3; i++ {
		if err := svc.RunCheck(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if notifier.calls != 2 {
		t.Fatalf("expected one notification per rule across all runs, got %d", notifier.calls)
	}
	if states.saves != 3 {
		t.Fatalf("state must be saved every run, got %d save(s)", states.saves)
	}
	if states.locks != 0 {
		t.Fatal("state lock must be released after each run")
	}
}

func TestRunCheckFetchFailureLeavesState(t *testing.T) {
	states := newMemoryStateStore()
	states.state["sticky"] = alerting.RuleState{LastTriggered: true}

	boom := errors.New("connection refused")
	svc := newService(&staticFetcher{err: boom}, states, &countingNotifier{})

	if err := svc.RunCheck(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("fetch failure should surface, got %v", err)
	}
	if states.saves != 0 {
		t.Fatal("state must not be saved when the fetch fails")
	}
	if !states.state["sticky"].LastTriggered {
		t.Fatal("prior state must be left untouched")
	}
}

func TestRunCheckPartialDeliveryStillPersists(t *testing.T) {
	failing := newMemoryStateStore()
	succeeding := newMemoryStateStore()

	// First notifier fails the first send, second succeeds everywhere.
	svcFail := newService(&staticFetcher{snap: hotSnapshot()}, failing, &countingNotifier{errs: map[int]error{0: errors.New("telegram down")}})
	svcOK := newService(&staticFetcher{snap: hotSnapshot()}, succeeding, &countingNotifier{})

	if err := svcFail.RunCheck(context.Background()); err != nil {
		t.Fatalf("delivery failure must not fail the run: %v", err)
	}
	if err := svcOK.RunCheck(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	normalize := func(state map[string]alerting.RuleState) map[string]bool {
		out := make(map[string]bool, len(state))
		for id, st := range state {
			out[id] = st.LastTriggered
		}
		return out
	}
	if !reflect.DeepEqual(normalize(failing.state), normalize(succeeding.state)) {
		t.Fatalf("state after partial delivery must match the all-success case:\n%v\n%v", failing.state, succeeding.state)
	}
}

func TestRunCheckLockFailureAbortsCleanly(t *testing.T) {
	states := &lockRefusingStore{}
	svc := newService(&staticFetcher{snap: hotSnapshot()}, states, &countingNotifier{})

	if err := svc.RunCheck(context.Background()); !errors.Is(err, storage.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

type lockRefusingStore struct{}

func (l *lockRefusingStore) Acquire() (func(), error) { return nil, storage.ErrLockHeld }
func (l *lockRefusingStore) Load() (map[string]alerting.RuleState, error) {
	return nil, errors.New("unreachable")
}
func (l *lockRefusingStore) Save(map[string]alerting.RuleState) error {
	return errors.New("unreachable")
}
