package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coopledger/internal/config"

	"go.uber.org/zap"
)

type fakeService struct {
	name     string
	startErr error
	block    bool

	mu      sync.Mutex
	stopped bool
	order   *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *fakeService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	return nil
}

func TestRunnerStopsAllServicesWhenOneFails(t *testing.T) {
	var order []string
	api := &fakeService{name: "ledger_api", block: true, order: &order}
	worker := &fakeService{name: "ledger_worker", startErr: errors.New("redis unreachable"), order: &order}

	runner := NewRunner(api, nil, worker)
	if names := runner.Names(); len(names) != 2 {
		t.Fatalf("nil service should be skipped, got %v", names)
	}
	err := runner.Run(context.Background(), time.Second, zap.NewNop().Sugar())
	if err == nil || err.Error() != "service ledger_worker: redis unreachable" {
		t.Fatalf("unexpected run error: %v", err)
	}
	if !api.stopped || !worker.stopped {
		t.Fatalf("all services should be stopped")
	}
	if len(order) != 2 || order[0] != "ledger_worker" || order[1] != "ledger_api" {
		t.Fatalf("services should stop in reverse order, got %v", order)
	}
}

func TestRunnerReturnsNilOnCancel(t *testing.T) {
	api := &fakeService{name: "ledger_api", block: true}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRunner(api).Run(ctx, time.Second, nil)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancel should end runner cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
	if !api.stopped {
		t.Fatalf("service should be stopped after cancel")
	}
}

func TestRunnerRequiresServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("empty runner should fail")
	}
}

func TestNewHTTPServiceUsesServerConfig(t *testing.T) {
	svc := NewHTTPService(config.ServerConfig{Host: "127.0.0.1", Port: "8080", ReadTimeoutSeconds: 15, WriteTimeoutSeconds: 30}, nil)
	if svc.Addr() != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr: %s", svc.Addr())
	}
	if svc.server.WriteTimeout != 30*time.Second || svc.server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", svc.server.ReadTimeout, svc.server.WriteTimeout)
	}
}

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]string{"": ModeAll, " API ": ModeAPI, "worker": ModeWorker} {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("parse %q: want %s got %s (%v)", raw, want, got, err)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
