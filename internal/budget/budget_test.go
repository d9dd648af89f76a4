package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
		{"ÿÿÿÿÿÿÿÿ", 2}, // 8 runes, 16 bytes → 2
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.AssistantMessage("hello world", nil),
	}
	// user:      4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	// assistant: 4 overhead + Estimate("assistant")=2 + 2 = 8
	got := EstimateMessages(msgs)
	if got != 15 {
		t.Errorf("EstimateMessages = %d, want 15", got)
	}
}

func history(pairs ...string) []*schema.Message {
	var out []*schema.Message
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schema.UserMessage(pairs[i]), schema.AssistantMessage(pairs[i+1], nil))
	}
	return out
}

func Test_TrimHistory(t *testing.T) {
	t.Parallel()

	// Each user message with a 1-token content costs 6; each assistant 7.
	// One exchange therefore costs 13.
	tests := []struct {
		name      string
		fixed     []*schema.Message
		history   []*schema.Message
		maxTokens int
		wantFirst string
		wantLen   int
	}{
		{
			name:      "disabled when budget is zero",
			history:   history("q1", "a1", "q2", "a2"),
			maxTokens: 0,
			wantFirst: "q1",
			wantLen:   4,
		},
		{
			name:      "fits without trimming",
			fixed:     []*schema.Message{schema.SystemMessage("sys")},
			history:   history("q1", "a1"),
			maxTokens: 1000,
			wantFirst: "q1",
			wantLen:   2,
		},
		{
			name:      "drops the oldest exchange whole",
			history:   history("q1", "a1", "q2", "a2"),
			maxTokens: 20,
			wantFirst: "q2",
			wantLen:   2,
		},
		{
			name:      "everything dropped when fixed exceeds budget",
			fixed:     []*schema.Message{schema.SystemMessage(strings.Repeat("x", 4*7000))},
			history:   history("q1", "a1"),
			maxTokens: 6000,
			wantLen:   0,
		},
		{
			name:      "empty history",
			fixed:     []*schema.Message{schema.SystemMessage("sys")},
			maxTokens: 10,
			wantLen:   0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TrimHistory(tc.fixed, tc.history, tc.maxTokens)
			if len(got) != tc.wantLen {
				t.Fatalf("want %d history messages, got %d", tc.wantLen, len(got))
			}
			if tc.wantLen > 0 && got[0].Content != tc.wantFirst {
				t.Errorf("first retained = %q, want %q", got[0].Content, tc.wantFirst)
			}
			if tc.wantLen > 0 && got[0].Role != schema.User {
				t.Errorf("trimmed history starts with %s, want user", got[0].Role)
			}
		})
	}
}
