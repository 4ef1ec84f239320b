package tokens

import (
	"strings"
	"testing"

	"pawbot/internal/provider"
)

func TestForModel(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", "o200k"},
		{"gpt-4o", "o200k"},
		{"openai:gpt-4.1-nano", "o200k"},
		{"o3-mini", "o200k"},
		{"gpt-4-turbo", "cl100k"},
		{"gpt-3.5-turbo", "cl100k"},
		{"GPT-4", "cl100k"},
		{"llama3:8b", "generic"},
		{"", "generic"},
		{"some/unknown-model", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := ForModel(tt.model).Profile().Name; got != tt.want {
				t.Errorf("ForModel(%q) = %s, want %s", tt.model, got, tt.want)
			}
		})
	}
}

func TestEstimator_Text(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		text    string
		want    int
	}{
		{"empty", O200K, "", 0},
		{"o200k ascii rounds up", O200K, "hello", 2},
		{"o200k ascii exact", O200K, "abcdefgh", 2},
		{"o200k cyrillic", O200K, "привет", 3},
		{"cl100k ascii", CL100K, "abcdefg", 2},
		{"cl100k cyrillic", CL100K, "привет", 6},
		{"generic ascii", Generic, "hello", 2},
		{"generic mixed", Generic, "Hi мир", 1 + 3},
		{"emoji counts as rune", Generic, "🐶", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Estimator{profile: tt.profile}
			if got := e.Text(tt.text); got != tt.want {
				t.Errorf("Text(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimator_ZeroValueIsGeneric(t *testing.T) {
	var e Estimator
	if got := e.Text("hello"); got != 2 {
		t.Errorf("zero Estimator Text = %d, want 2", got)
	}
}

func TestEstimator_Messages(t *testing.T) {
	e := ForModel("gpt-4o-mini")

	if got := e.Messages(nil); got != 0 {
		t.Errorf("Messages(nil) = %d, want 0", got)
	}

	msgs := []provider.Message{
		provider.SystemMessage("abcdefgh"),
		provider.UserMessage("hello"),
	}
	want := ReplyPriming + (2 + MessageOverhead) + (2 + MessageOverhead)
	if got := e.Messages(msgs); got != want {
		t.Errorf("Messages = %d, want %d", got, want)
	}
}

func TestEstimator_Monotonic(t *testing.T) {
	for _, model := range []string{"gpt-4o", "gpt-4", "mistral"} {
		e := ForModel(model)

		prev := 0
		var sb strings.Builder
		for i := 0; i < 200; i++ {
			if i%3 == 0 {
				sb.WriteString("ж")
			} else {
				sb.WriteByte('a')
			}
			got := e.Text(sb.String())
			if got < prev {
				t.Fatalf("%s: Text not monotonic at len %d: %d < %d", model, i, got, prev)
			}
			prev = got
		}

		var msgs []provider.Message
		prev = 0
		for i := 0; i < 20; i++ {
			msgs = append(msgs, provider.UserMessage(""))
			got := e.Messages(msgs)
			if got <= prev {
				t.Fatalf("%s: Messages not strictly increasing at %d", model, i)
			}
			prev = got
		}
	}
}

func TestEstimator_Deterministic(t *testing.T) {
	e := ForModel("gpt-4o-mini")
	text := strings.Repeat("Четыре Лапы — и не только. ", 50)
	first := e.Text(text)
	for i := 0; i < 5; i++ {
		if got := e.Text(text); got != first {
			t.Fatalf("Text changed between calls: %d vs %d", got, first)
		}
	}
}
