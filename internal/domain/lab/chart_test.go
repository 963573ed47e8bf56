package lab

import (
	"strings"
	"testing"
)

func TestTrendChart(t *testing.T) {
	points := []SeriesPoint{
		{Label: "2024-01-10", Value: 10.8, Unit: "g/dL", Status: ParamLow},
		{Label: "2024-02-10", Value: 12.4, Unit: "g/dL", Status: ParamNormal},
	}
	ref := &ReferenceRange{MinValue: "11.0", MaxValue: "15.0"}

	html, err := TrendChart("Hemoglobin", points, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Hemoglobin", "Ref Min", "Ref Max", "2024-02-10", "g/dL"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart missing %q", want)
		}
	}

	html, err = TrendChart("Hemoglobin", points, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "Ref Min") {
		t.Error("no reference lines expected without a range")
	}
}

func TestTrendChart_NoPoints(t *testing.T) {
	if _, err := TrendChart("WBC", nil, nil); err == nil || !strings.Contains(err.Error(), "WBC") {
		t.Errorf("expected no-values error, got %v", err)
	}
}
