package diagnosis

import (
	"testing"
	"time"
)

func TestActionForStatus(t *testing.T) {
	for _, s := range Statuses {
		a, ok := ActionForStatus(s)
		if !ok || !IsStatusAction(a) {
			t.Errorf("no action for %s", s)
		}
	}
	if a, _ := ActionForStatus("rule_out"); a != ActionMarkRuleOut {
		t.Errorf("expected case-insensitive lookup, got %q", a)
	}
	if _, ok := ActionForStatus("CURED"); ok {
		t.Error("unexpected action for unknown status")
	}
	if IsStatusAction("RESOLVED") {
		t.Error("a status is not an action")
	}
}

func TestDurationDays(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		d      Diagnosis
		want   int
		wantOK bool
	}{
		{"open", Diagnosis{OnsetDate: "2024-03-01"}, 9, true},
		{"resolved", Diagnosis{OnsetDate: "2024-03-01", ResolutionDate: "2024-03-04"}, 3, true},
		{"timestamp onset", Diagnosis{OnsetDate: "2024-03-08T22:00:00Z"}, 2, true},
		{"no onset", Diagnosis{}, 0, false},
		{"bad resolution", Diagnosis{OnsetDate: "2024-03-01", ResolutionDate: "soon"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.d.DurationDays(now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DurationDays() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDiagnosisString(t *testing.T) {
	at := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	d := Diagnosis{Title: "Asthma", DateDiagnosed: &at}
	if d.String() != "Asthma - (2024-01-02)" {
		t.Errorf("String() = %q", d.String())
	}
}
