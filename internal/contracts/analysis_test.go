package contracts

import (
	"testing"
	"time"
)

func TestAnalysisRecord_IsReusableAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	cutoff := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  AnalysisRecord
		want bool
	}{
		{
			name: "completed and unexpired",
			rec:  AnalysisRecord{Status: StatusCompleted, ValidUntil: cutoff},
			want: true,
		},
		{
			name: "completed but expired",
			rec:  AnalysisRecord{Status: StatusCompleted, ValidUntil: now.Add(-time.Hour)},
			want: false,
		},
		{
			name: "failed records are retryable, never reusable",
			rec:  AnalysisRecord{Status: StatusFailed, ValidUntil: cutoff},
			want: false,
		},
		{
			name: "in progress",
			rec:  AnalysisRecord{Status: StatusInProgress, ValidUntil: cutoff},
			want: false,
		},
		{
			name: "completed but not yet released",
			rec: AnalysisRecord{
				Status:             StatusCompleted,
				ValidUntil:         cutoff,
				ScheduledReleaseAt: timePtr(now.Add(30 * time.Minute)),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.IsReusableAt(now); got != tt.want {
				t.Errorf("IsReusableAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalysisStatus_IsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() || StatusInProgress.IsTerminal() {
		t.Error("pending/in_progress must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("completed/failed must be terminal")
	}
}

func TestQuotaWindow_Contains(t *testing.T) {
	w := QuotaWindow{
		Start: time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 11, 15, 30, 0, 0, time.UTC),
	}

	if !w.Contains(w.Start) {
		t.Error("window must include its start")
	}
	if w.Contains(w.End) {
		t.Error("window must exclude its end")
	}
	if !w.Contains(w.Start.Add(12 * time.Hour)) {
		t.Error("window must include interior points")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
