package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidatorRules(t *testing.T) {
	tests := []struct {
		name      string
		check     func(v *Validator)
		wantError bool
	}{
		{"non-empty", func(v *Validator) { v.RequireNonEmpty("f", "valid") }, false},
		{"empty", func(v *Validator) { v.RequireNonEmpty("f", "") }, true},
		{"blank", func(v *Validator) { v.RequireNonEmpty("f", "   ") }, true},
		{"positive", func(v *Validator) { v.RequirePositive("f", 10) }, false},
		{"zero", func(v *Validator) { v.RequirePositive("f", 0) }, true},
		{"negative", func(v *Validator) { v.RequirePositive("f", -5) }, true},
		{"duration", func(v *Validator) { v.RequirePositiveDuration("f", time.Second) }, false},
		{"zero duration", func(v *Validator) { v.RequirePositiveDuration("f", 0) }, true},
		{"list", func(v *Validator) { v.RequireAny("f", []string{"**/*.md"}) }, false},
		{"empty list", func(v *Validator) { v.RequireAny("f", nil) }, true},
		{"range min", func(v *Validator) { v.ValidateRange("f", 1, 1, 10) }, false},
		{"range max", func(v *Validator) { v.ValidateRange("f", 10, 1, 10) }, false},
		{"range below", func(v *Validator) { v.ValidateRange("f", 0, 1, 10) }, true},
		{"range above", func(v *Validator) { v.ValidateRange("f", 11, 1, 10) }, true},
		{"float inside", func(v *Validator) { v.ValidateFloatRange("f", 0.7, 0, 2) }, false},
		{"float above", func(v *Validator) { v.ValidateFloatRange("f", 2.5, 0, 2) }, true},
		{"port", func(v *Validator) { v.ValidatePort("f", 5432) }, false},
		{"port zero", func(v *Validator) { v.ValidatePort("f", 0) }, true},
		{"port too large", func(v *Validator) { v.ValidatePort("f", 65536) }, true},
		{"redis db", func(v *Validator) { v.ValidateDBNumber("f", 15) }, false},
		{"redis db too large", func(v *Validator) { v.ValidateDBNumber("f", 16) }, true},
		{"one of", func(v *Validator) { v.ValidateOneOf("f", "redis", "none", "redis") }, false},
		{"not one of", func(v *Validator) { v.ValidateOneOf("f", "etcd", "none", "redis") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.check(v)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v (%v)", v.HasErrors(), tt.wantError, v.Errors())
			}
		})
	}
}

func TestValidatorMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("field1", "")
	v.RequirePositive("field2", 0)
	v.ValidatePort("field3", 99999)

	if len(v.Errors()) != 3 {
		t.Errorf("Errors() count = %d, want 3", len(v.Errors()))
	}
	err := v.Error()
	if err == nil {
		t.Fatal("Error() = nil, want non-nil error")
	}
	for _, field := range []string{"field1", "field2", "field3"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Error() should name %s, got %q", field, err)
		}
	}
	if NewValidator().Error() != nil {
		t.Error("empty validator should report no error")
	}
}
