package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistry_RunsInPriorityOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	add := func(name string, prio int) {
		r.Register(name, prio, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	add("logger", 90)
	add("history", 10)
	add("partials", 40)
	add("history-2", 10)

	wantNames := []string{"history", "history-2", "partials", "logger"}
	if got := strings.Join(r.Names(), ","); got != strings.Join(wantNames, ",") {
		t.Errorf("Names() = %s, want %s", got, strings.Join(wantNames, ","))
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := strings.Join(order, ","); got != strings.Join(wantNames, ",") {
		t.Errorf("execution order = %s, want %s", got, strings.Join(wantNames, ","))
	}
}

func TestRegistry_CombinesErrorsAndRunsAll(t *testing.T) {
	r := NewRegistry()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ranLast := false
	r.Register("a", 1, func(context.Context) error { return errA })
	r.Register("b", 2, func(context.Context) error { return errB })
	r.Register("c", 3, func(context.Context) error { ranLast = true; return nil })

	err := r.Run(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Run() error = %v, want both failures", err)
	}
	if !ranLast {
		t.Error("cleanup after a failure did not run")
	}
	if !strings.Contains(err.Error(), "a: a failed") {
		t.Errorf("Run() error = %q, want name prefix", err.Error())
	}
}

func TestRegistry_RunOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("x", 0, func(context.Context) error { calls++; return nil })

	_ = r.Run(context.Background())
	if err := r.Run(context.Background()); err != nil {
		t.Errorf("second Run() error: %v", err)
	}
	r.Register("late", 0, func(context.Context) error { calls++; return nil })
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (late registration ignored)", r.Count())
	}
}
