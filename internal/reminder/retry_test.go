package reminder

import (
	"testing"
	"time"
)

func TestDeriveRetryJobID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		n    int
		want string
	}{
		{"reminder_1_1736899200", 0, "reminder_1_1736899200"},
		{"reminder_1_1736899200", 1, "reminder_1_1736899200_retry_1"},
		{"reminder_1_1736899200", 2, "reminder_1_1736899200_retry_2"},
	}
	for _, tt := range tests {
		if got := DeriveRetryJobID(tt.id, tt.n); got != tt.want {
			t.Fatalf("DeriveRetryJobID(%q, %d) = %q, want %q", tt.id, tt.n, got, tt.want)
		}
		if DeriveRetryJobID(tt.id, tt.n) != DeriveRetryJobID(tt.id, tt.n) {
			t.Fatalf("DeriveRetryJobID is not stable")
		}
	}
}

func TestRetryPolicyDecide(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	now := time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	r := Reminder{ID: "reminder_1_1"}

	for n := 1; n <= 2; n++ {
		d := p.decide(r, now)
		if !d.retry || d.retryCount != n {
			t.Fatalf("decide(retryCount=%d) = %+v, want retry %d", r.RetryCount, d, n)
		}
		if !d.fireAt.Equal(now.Add(5 * time.Minute)) {
			t.Fatalf("fireAt = %v, want now+5m", d.fireAt)
		}
		if d.jobID != DeriveRetryJobID(r.ID, n) {
			t.Fatalf("jobID = %q", d.jobID)
		}
		r.RetryCount = d.retryCount
	}
	if d := p.decide(r, now); d.retry || d.retryCount != 2 {
		t.Fatalf("decide(retryCount=2) = %+v, want give up", d)
	}
}

func TestReminderIDAndStates(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	if got := ReminderID(42, at); got != "reminder_42_1736935200" {
		t.Fatalf("ReminderID = %q", got)
	}
	if !StateDelivered.Terminal() || !StateFailed.Terminal() || StateRetryPending.Terminal() {
		t.Fatalf("Terminal misclassified")
	}
	if StateRetryPending.String() != "retry_pending" {
		t.Fatalf("String = %q", StateRetryPending)
	}
}
