package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestEscalatorParsesReview(t *testing.T) {
	stub := &stubBackend{response: "```json\n" + `{
  "interview_questions": ["Q1", "Q2", "Q3", "Q4"],
  "outreach_hook": "You need on-call sanity; I cut pages by 70%."
}` + "\n```"}
	esc := NewEscalator(stub, zap.NewNop(), 0)

	got := esc.Analyze(context.Background(), "full cv", samplePosting())
	if !got.Available() {
		t.Fatalf("expected escalation to be available")
	}
	if len(got.RiskQuestions) != RiskQuestionCount || got.RiskQuestions[2] != "Q3" {
		t.Fatalf("unexpected questions: %v", got.RiskQuestions)
	}
	if got.OutreachHook == "" {
		t.Fatalf("expected outreach hook")
	}
	if stub.opts.Temperature != escalateTemperature || stub.opts.MaxTokens != escalateMaxTokens {
		t.Fatalf("unexpected options: %+v", stub.opts)
	}
}

func TestEscalatorFailuresAreUnavailable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		stub *stubBackend
	}{
		{name: "transport", stub: &stubBackend{err: errors.New("timeout")}},
		{name: "garbage", stub: &stubBackend{response: "I refuse"}},
		{name: "empty object", stub: &stubBackend{response: "{}"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NewEscalator(tc.stub, zap.NewNop(), 0).Analyze(context.Background(), "cv", samplePosting())
			if got.Available() {
				t.Fatalf("expected unavailable escalation, got %+v", got)
			}
		})
	}
}

func TestEscalatorTruncatesCV(t *testing.T) {
	stub := &stubBackend{response: "{}"}
	NewEscalator(stub, zap.NewNop(), 0).Analyze(context.Background(), strings.Repeat("c", maxCVRunes+10), samplePosting())

	if strings.Contains(stub.messages[1].Content, strings.Repeat("c", maxCVRunes+1)) {
		t.Fatalf("expected cv to be truncated to %d runes", maxCVRunes)
	}
}
