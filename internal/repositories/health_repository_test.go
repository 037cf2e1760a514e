package repositories

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDependencyHealthRepositoryAllHealthy(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "gateway", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository returned error: %v", err)
	}

	status, err := repo.Check(context.Background())
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !status.Healthy {
		t.Fatalf("expected healthy status, got %+v", status)
	}
	if status.Details["firestore"] != "ok" || status.Details["gateway"] != "ok" {
		t.Errorf("unexpected details: %v", status.Details)
	}
}

func TestDependencyHealthRepositoryFailure(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return errors.New("connection refused") }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository returned error: %v", err)
	}

	status, err := repo.Check(context.Background())
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if status.Healthy {
		t.Fatal("expected unhealthy status")
	}
	if status.Details["firestore"] != "connection refused" {
		t.Errorf("unexpected detail: %q", status.Details["firestore"])
	}
}

func TestDependencyHealthRepositoryTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "slow",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository returned error: %v", err)
	}

	status, err := repo.Check(context.Background())
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if status.Healthy {
		t.Fatal("expected unhealthy status")
	}
	if status.Details["slow"] != "timeout" {
		t.Errorf("unexpected detail: %q", status.Details["slow"])
	}
}

func TestDependencyHealthRepositoryRequiresChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check set")
	}
}
