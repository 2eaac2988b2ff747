package scheduler

import (
	"testing"
	"time"

	"github.com/pedidobot/pedidobot/internal/flow"
	"github.com/pedidobot/pedidobot/internal/store"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
}

func TestSchedulerAddJobInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestRegisterMaintenanceJobs(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	st := store.NewInMemoryStore()
	mem := flow.NewMemoryManager(st)
	if err := s.RegisterMaintenanceJobs(st, mem, WithIdleTTL(10*time.Minute)); err != nil {
		t.Fatalf("RegisterMaintenanceJobs failed: %v", err)
	}
}
