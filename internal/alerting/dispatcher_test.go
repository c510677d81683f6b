package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type scriptedNotifier struct {
	errs  []error
	calls int
}

func (s *scriptedNotifier) Notify(ctx context.Context, text string) error {
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	return err
}

func TestDispatchPartialFailure(t *testing.T) {
	boom := errors.New("sender down")
	notifier := &scriptedNotifier{errs: []error{boom, nil}}
	dispatcher := NewDispatcher(notifier, testLogger())

	events := []Event{
		newEvent(EventTriggered, testRule(1, RateColocador, CondGTE, "30"), decimal.RequireFromString("31"), time.Now()),
		newEvent(EventTriggered, testRule(7, RateTomador, CondLTE, "20"), decimal.RequireFromString("19"), time.Now()),
	}

	results := dispatcher.Dispatch(context.Background(), events)
	if len(results) != 2 {
		t.Fatalf("expected a result per event, got %d", len(results))
	}
	if !errors.Is(results[0].Err, boom) {
		t.Fatalf("first result should carry the delivery error, got %v", results[0].Err)
	}
	if results[1].Err != nil {
		t.Fatalf("second delivery should succeed, got %v", results[1].Err)
	}
	if notifier.calls != 2 {
		t.Fatalf("a failed send must not abort remaining events, %d call(s) made", notifier.calls)
	}
}

func TestRenderEvent(t *testing.T) {
	rule := testRule(7, RateColocador, CondGTE, "35")
	rule.Description = "weekly caución watch"
	ev := newEvent(EventTriggered, rule, decimal.RequireFromString("36.5"), time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC))

	text := RenderEvent(ev)
	for _, want := range []string{"Plazo: 7 day(s)", "colocador (lender)", "36.50%", ">= 35.00%", "weekly caución watch"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestRenderClearedEvent(t *testing.T) {
	ev := newEvent(EventCleared, testRule(1, RateTomador, CondGTE, "40"), decimal.RequireFromString("39"), time.Now())
	if !strings.Contains(RenderEvent(ev), "Cleared") {
		t.Fatal("cleared events should render a distinct headline")
	}
}
