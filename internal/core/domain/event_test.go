package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSeverity_Ordering(t *testing.T) {
	if !(SeverityLow < SeverityMedium && SeverityMedium < SeverityHigh && SeverityHigh < SeverityCritical) {
		t.Fatal("severities are not ordered low < medium < high < critical")
	}
	if got := MaxSeverity(SeverityHigh, SeverityMedium); got != SeverityHigh {
		t.Errorf("MaxSeverity() = %v, want high", got)
	}
	if got := MaxSeverity(0, SeverityLow); got != SeverityLow {
		t.Errorf("MaxSeverity(0, low) = %v, want low", got)
	}
}

func TestSeverity_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityCritical})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"s":"critical"}` {
		t.Errorf("Marshal() = %s", b)
	}

	var out struct {
		S Severity `json:"s"`
	}
	if err := json.Unmarshal([]byte(`{"s":"HIGH"}`), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.S != SeverityHigh {
		t.Errorf("Unmarshal() = %v, want high", out.S)
	}
	if err := json.Unmarshal([]byte(`{"s":"apocalyptic"}`), &out); err == nil {
		t.Error("Unmarshal() accepted an unknown severity")
	}
}

func TestReason_Err(t *testing.T) {
	tests := []struct {
		reason Reason
		want   *DomainError
	}{
		{ReasonOK, nil},
		{ReasonInvalidFormat, ErrTokenMalformed},
		{ReasonIPBlocked, ErrBlocked},
		{ReasonRateLimited, ErrRateLimited},
		{ReasonInvalidToken, ErrTokenInvalid},
		{ReasonSuspiciousOrigin, ErrSuspiciousActivity},
		{ReasonSuspiciousActivity, ErrSuspiciousActivity},
		{ReasonTokenReused, ErrTokenAlreadyUsed},
		{ReasonTokenExpired, ErrTokenExpired},
		{ReasonInternalError, ErrInternalServer},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			got := tt.reason.Err()
			if tt.want == nil {
				if got != nil {
					t.Errorf("Err() = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("Err() = %v, want %v", got, tt.want)
			}
		})
	}
}
