package models

import "testing"

func floatPtr(f float64) *float64 {
	return &f
}

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		name     string
		percent  *float64
		expected HealthStatus
	}{
		{"empty tank", floatPtr(0), HealthCritical},
		{"just below critical", floatPtr(19.99), HealthCritical},
		{"at critical threshold", floatPtr(20), HealthWarning},
		{"just below warning", floatPtr(39.9), HealthWarning},
		{"at warning threshold", floatPtr(40), HealthHealthy},
		{"full tank", floatPtr(100), HealthHealthy},
		{"missing percentage", nil, HealthUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyHealth(tt.percent); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestUllage(t *testing.T) {
	if got := Ullage(floatPtr(1000), floatPtr(250)); got == nil || *got != 750 {
		t.Errorf("Expected ullage 750, got %v", got)
	}
	if got := Ullage(floatPtr(1000), floatPtr(1200)); got == nil || *got != 0 {
		t.Errorf("Expected overfilled tank to floor at 0, got %v", got)
	}
	if got := Ullage(nil, floatPtr(10)); got != nil {
		t.Errorf("Expected nil ullage without capacity, got %v", *got)
	}
	if got := Ullage(floatPtr(10), nil); got != nil {
		t.Errorf("Expected nil ullage without volume, got %v", *got)
	}
}
