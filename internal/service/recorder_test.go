package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vipul43/tanksync-worker/internal/models"
)

func TestRunRecorder_ErrorMessageStaysValidUTF8(t *testing.T) {
	logs := &mockSyncLogStore{}
	recorder := NewRunRecorder(logs)
	started := time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)

	run := recorder.Start(context.Background(), Trigger{Type: models.SyncTypeScheduled, Source: "scheduler"}, started)
	// "x: " plus the padding puts a two-byte rune across the length limit.
	results := []models.SyncResult{{
		CustomerName: "x",
		Status:       models.CustomerSyncFailed,
		Error:        strings.Repeat("a", maxErrorMessageLen-4) + strings.Repeat("ü", 10),
	}}
	recorder.Complete(context.Background(), run, Summarize(results), results, started.Add(time.Second), "")

	if len(logs.completed) != 1 {
		t.Fatalf("expected log completed once, got %d", len(logs.completed))
	}
	msg := logs.completed[0].ErrorMessage
	if msg == nil {
		t.Fatal("expected an error message")
	}
	if len(*msg) > maxErrorMessageLen {
		t.Errorf("message length = %d, want <= %d", len(*msg), maxErrorMessageLen)
	}
	if !utf8.ValidString(*msg) {
		t.Errorf("message is not valid UTF-8")
	}
}

func TestTruncateMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"splits rune", "abü", 3, "ab"},
		{"drops invalid input", "ab\xffc", 10, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateMessage(tt.in, tt.n); got != tt.want {
				t.Errorf("truncateMessage(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
