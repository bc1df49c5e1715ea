package validation

import (
	"testing"
)

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("accountId", "acct-1"),
		NonNegative("amount", 10.50),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("accountId", ""),
		NonNegative("amount", -1),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestRequired(t *testing.T) {
	if err := Required("field", "value")(); err != nil {
		t.Error("Expected no error for non-empty value")
	}
	if err := Required("field", "")(); err == nil {
		t.Error("Expected error for empty value")
	}
	if err := Required("field", "   ")(); err == nil {
		t.Error("Expected error for whitespace-only value")
	}
}

func TestNonNegative(t *testing.T) {
	tests := []struct {
		value float64
		valid bool
	}{
		{0, true},
		{0.01, true},
		{1_000_000, true},
		{-0.01, false},
		{-100, false},
	}

	for _, tc := range tests {
		err := NonNegative("amount", tc.value)()
		if (err == nil) != tc.valid {
			t.Errorf("NonNegative(%v) valid=%v, want %v", tc.value, err == nil, tc.valid)
		}
	}
}

func TestGeoPair(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		lat   *float64
		lng   *float64
		valid bool
	}{
		{"both absent", nil, nil, true},
		{"both present", f(12.9716), f(77.5946), true},
		{"boundary values", f(90), f(-180), true},
		{"lat only", f(12.9716), nil, false},
		{"lng only", nil, f(77.5946), false},
		{"lat out of range", f(91), f(0), false},
		{"lng out of range", f(0), f(181), false},
	}

	for _, tc := range tests {
		err := GeoPair(tc.lat, tc.lng)()
		if (err == nil) != tc.valid {
			t.Errorf("%s: valid=%v, want %v", tc.name, err == nil, tc.valid)
		}
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	if err := MaxLength("field", "hello", 10)(); err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	if err := MaxLength("field", "hello", 5)(); err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	if err := MaxLength("field", "hello world", 5)(); err == nil {
		t.Error("Expected error for string over limit")
	}
}

func TestValidationErrorsError(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "validation failed" {
		t.Errorf("unexpected message: %s", empty.Error())
	}

	errs := ValidationErrors{{Field: "amount", Message: "must be non-negative"}}
	if errs.Error() != "amount: must be non-negative" {
		t.Errorf("unexpected message: %s", errs.Error())
	}
}
