package model

import "testing"

func TestDefaultSeverity(t *testing.T) {
	tests := []struct {
		alert AlertType
		want  Severity
	}{
		{AlertModelLoadError, SeverityCritical},
		{AlertSystemError, SeverityCritical},
		{AlertMultipleFaces, SeverityHigh},
		{AlertForbiddenObject, SeverityHigh},
		{AlertWebcamDisconnected, SeverityHigh},
		{AlertNoFace, SeverityMedium},
		{AlertPageLeaveAttempt, SeverityMedium},
		{AlertBrowserSwitch, SeverityMedium},
		{AlertScreenSharingStopped, SeverityMedium},
		{AlertFaceNotCentered, SeverityLow},
		{AlertSuspiciousGaze, SeverityLow},
		{AlertFocusLost, SeverityLow},
		{AlertOther, SeverityMedium},
		{AlertType("laser-pointer"), SeverityMedium},
		{AlertType(""), SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(string(tt.alert), func(t *testing.T) {
			if got := DefaultSeverity(tt.alert); got != tt.want {
				t.Errorf("DefaultSeverity(%q) = %q, want %q", tt.alert, got, tt.want)
			}
		})
	}
}

func TestSeverityValid(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []Severity{"", "urgent", "LOW"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestReviewStatusActionable(t *testing.T) {
	tests := []struct {
		status ReviewStatus
		want   bool
	}{
		{ReviewReviewed, true},
		{ReviewDismissed, true},
		{ReviewFlagged, true},
		{ReviewPending, false},
		{ReviewStatus("approved"), false},
	}
	for _, tt := range tests {
		if got := tt.status.Actionable(); got != tt.want {
			t.Errorf("%q.Actionable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
