package bot

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgard/civicbot/internal/bot/tasks"
	"github.com/edgard/civicbot/internal/config"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingWaiter struct{ calls atomic.Int32 }

func (w *countingWaiter) Wait() { w.calls.Add(1) }

func TestSchedulerSkipsUnusableTasks(t *testing.T) {
	noop := func(context.Context) error { return nil }
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"sql_maintenance":  {Enabled: true, Schedule: "0 30 3 * * *"},
		"monitor_twitter":  {Enabled: false, Schedule: "0 */15 * * * *"},
		"state_compaction": {Enabled: true, Schedule: ""},
		"unregistered":     {Enabled: true, Schedule: "0 * * * * *"},
		"bad_schedule":     {Enabled: true, Schedule: "every now and then"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"sql_maintenance":  noop,
		"monitor_twitter":  noop,
		"state_compaction": noop,
		"bad_schedule":     noop,
	}

	s, err := NewScheduler(discard, cfg, taskMap, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if got, want := s.JobNames(), []string{"sql_maintenance"}; !reflect.DeepEqual(got, want) {
		t.Errorf("JobNames() = %v, want %v", got, want)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestSchedulerStopCancelsTasks(t *testing.T) {
	s, err := NewScheduler(discard, &config.SchedulerConfig{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.base.Err() == nil {
		t.Error("task context not cancelled after Stop")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestBotServesUntilCancelled(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	sched, err := NewScheduler(discard, &cfg.Scheduler, nil, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	waiter := &countingWaiter{}
	b := NewBot(discard, cfg, handler, sched, waiter)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
	if waiter.calls.Load() != 1 {
		t.Errorf("background Wait called %d times, want 1", waiter.calls.Load())
	}
}
