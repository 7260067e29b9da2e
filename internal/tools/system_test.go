package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCurrentTime(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	s := &System{now: func() time.Time { return fixed }}

	result := s.CurrentTime(context.Background(), TimeInput{})
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Data["timezone"] != "UTC" {
		t.Errorf("expected UTC default, got %v", result.Data["timezone"])
	}
	if result.Data["time"] != "2025-06-15T12:30:00Z" {
		t.Errorf("unexpected time: %v", result.Data["time"])
	}
	if result.Data["weekday"] != "Sunday" {
		t.Errorf("unexpected weekday: %v", result.Data["weekday"])
	}
}

func TestCurrentTimeWithTimezone(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	s := &System{now: func() time.Time { return fixed }}

	result := s.CurrentTime(context.Background(), TimeInput{Timezone: "Asia/Tokyo"})
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Data["timezone"] != "Asia/Tokyo" {
		t.Errorf("unexpected timezone: %v", result.Data["timezone"])
	}
	if got, _ := result.Data["time"].(string); !strings.Contains(got, "21:30:00+09:00") {
		t.Errorf("expected JST offset, got %v", got)
	}
}

func TestCurrentTimeUnknownTimezone(t *testing.T) {
	t.Parallel()
	s := NewSystem()

	result := s.CurrentTime(context.Background(), TimeInput{Timezone: "Mars/Olympus"})
	if result.Status != StatusError || result.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation error, got %+v", result)
	}
}

func TestCalculate(t *testing.T) {
	t.Parallel()
	s := NewSystem()

	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2", 3},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"-5 + 3", -2},
		{"-(2 + 3)", -5},
		{"1.5 * 2", 3},
		{"(22 - 14) * 1.8 + 32", 46.4},
		{"2 * -3", -6},
		{"((1))", 1},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			result := s.Calculate(context.Background(), CalculateInput{Expression: tt.expr})
			if result.Status != StatusSuccess {
				t.Fatalf("Calculate(%q) failed: %+v", tt.expr, result)
			}
			got, ok := result.Data["result"].(float64)
			if !ok {
				t.Fatalf("result is not a float: %v", result.Data["result"])
			}
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Calculate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCalculateErrors(t *testing.T) {
	t.Parallel()
	s := NewSystem()

	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"division by zero", "1 / 0"},
		{"trailing operator", "1 +"},
		{"unbalanced parens", "(1 + 2"},
		{"letters", "two plus two"},
		{"injection attempt", "__import__('os')"},
		{"power unsupported", "2 ** 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := s.Calculate(context.Background(), CalculateInput{Expression: tt.expr})
			if result.Status != StatusError {
				t.Fatalf("Calculate(%q) = %+v, want error result", tt.expr, result)
			}
		})
	}
}
