package health

import (
	"context"
	"testing"
	"time"
)

func TestExecChecker_HealthyCommand(t *testing.T) {
	checker := NewExecChecker([]string{"true"})

	ctx := context.Background()
	result := checker.Check(ctx)

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}
}

func TestExecChecker_UnhealthyCommand(t *testing.T) {
	checker := NewExecChecker([]string{"false"})

	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("Expected unhealthy, got healthy: %s", result.Message)
	}
}

func TestExecChecker_NoCommandConfigured(t *testing.T) {
	checker := NewExecChecker(nil)

	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		t.Error("Expected unhealthy with no command configured")
	}
}

func TestExecChecker_Timeout(t *testing.T) {
	checker := NewExecChecker([]string{"sleep", "0.2"}).WithTimeout(20 * time.Millisecond)

	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("Expected unhealthy due to timeout, got healthy: %s", result.Message)
	}
}

func TestExecChecker_Type(t *testing.T) {
	checker := NewExecChecker([]string{"true"})
	if checker.Type() != CheckTypeExec {
		t.Errorf("Expected type %s, got %s", CheckTypeExec, checker.Type())
	}
}
