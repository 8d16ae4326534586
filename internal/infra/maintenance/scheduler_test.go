package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScheduler_Add(t *testing.T) {
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"valid", Task{Name: "a", Interval: time.Second, Run: noop}, false},
		{"no name", Task{Interval: time.Second, Run: noop}, true},
		{"no run", Task{Name: "a", Interval: time.Second}, true},
		{"zero interval", Task{Name: "a", Run: noop}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(quiet())
			err := s.Add(tt.task)
			if (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_AddAfterStart(t *testing.T) {
	s := NewScheduler(quiet())
	s.Start()
	defer s.Stop(context.Background())

	err := s.Add(Task{Name: "late", Interval: time.Second, Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStarted) {
		t.Errorf("Add() error = %v, want ErrStarted", err)
	}
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	s := NewScheduler(quiet())
	var runs atomic.Int32
	if err := s.Add(Task{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	s.Start()
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	n := runs.Load()
	if n < 3 {
		t.Errorf("runs = %d, want at least 3", n)
	}
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != n {
		t.Error("task ran after Stop")
	}
}

func TestScheduler_Immediate(t *testing.T) {
	s := NewScheduler(quiet())
	ran := make(chan struct{}, 1)
	_ = s.Add(Task{
		Name:      "startup",
		Interval:  time.Hour,
		Immediate: true,
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate task did not run at Start")
	}
}

func TestScheduler_FailuresAndPanicsAreContained(t *testing.T) {
	m := metric.NewRegistry()
	s := NewScheduler(quiet(), WithMetrics(m))
	var healthy atomic.Int32
	_ = s.Add(Task{Name: "fails", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		return errors.New("boom")
	}})
	_ = s.Add(Task{Name: "panics", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		panic("bad task")
	}})
	_ = s.Add(Task{Name: "healthy", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		healthy.Add(1)
		return nil
	}})

	s.Start()
	time.Sleep(80 * time.Millisecond)
	_ = s.Stop(context.Background())

	if healthy.Load() < 2 {
		t.Errorf("healthy runs = %d, want at least 2", healthy.Load())
	}
	got, err := testutil.GatherAndCount(m.Prometheus(), "rsvpguard_maintenance_runs_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if got < 3 {
		t.Errorf("maintenance series = %d, want at least 3", got)
	}
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	s := NewScheduler(quiet())
	started := make(chan struct{})
	_ = s.Add(Task{
		Name:      "blocking",
		Interval:  time.Hour,
		Timeout:   time.Hour,
		Immediate: true,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	s.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestScheduler_Tasks(t *testing.T) {
	s := NewScheduler(quiet())
	noop := func(context.Context) error { return nil }
	_ = s.Add(Task{Name: "a", Interval: time.Minute, Run: noop})
	_ = s.Add(Task{Name: "b", Interval: time.Minute, Run: noop})
	if got := s.Tasks(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Tasks() = %v", got)
	}
}
