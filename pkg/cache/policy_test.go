package cache

import (
	"testing"
	"time"

	"github.com/facetrace-ai/facetrace/pkg/models"
)

func TestPolicyIsLive(t *testing.T) {
	p := Policy{FailureRetention: time.Hour, StaleRetention: time.Hour}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future expiry", now.Add(time.Minute), true},
		{"past expiry", now.Add(-time.Minute), false},
		{"expires exactly now", now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &models.CacheEntry{Status: models.StatusSuccess, ExpiresAt: tt.expiresAt}
			if got := p.IsLive(e, now); got != tt.want {
				t.Errorf("IsLive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyIsReclaimable(t *testing.T) {
	p := Policy{FailureRetention: time.Hour, StaleRetention: 24 * time.Hour}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status models.EntryStatus
		age    time.Duration
		hits   int64
		want   bool
	}{
		{"fresh success with hits", models.StatusSuccess, time.Minute, 3, false},
		{"old failure", models.StatusFailure, 2 * time.Hour, 0, true},
		{"old failure with hits", models.StatusFailure, 2 * time.Hour, 5, true},
		{"recent failure", models.StatusFailure, 30 * time.Minute, 0, false},
		{"stale zero-hit success", models.StatusSuccess, 25 * time.Hour, 0, true},
		{"young zero-hit success", models.StatusSuccess, 23 * time.Hour, 0, false},
		{"old success with hits", models.StatusSuccess, 48 * time.Hour, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &models.CacheEntry{
				Status:    tt.status,
				CreatedAt: now.Add(-tt.age),
				HitCount:  tt.hits,
			}
			if got := p.IsReclaimable(e, now); got != tt.want {
				t.Errorf("IsReclaimable = %v, want %v", got, tt.want)
			}
		})
	}
}
