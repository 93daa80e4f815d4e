package llm

import (
	"context"
	"testing"
)

func TestMockLLM_Generate(t *testing.T) {
	prompt := "Summarize the call.\nuser: Hello\nassistant: Hi! What shall we learn?\nuser: Fractions"

	got, err := NewMockLLM().Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "The student and the tutor exchanged 3 messages during the call." {
		t.Errorf("Unexpected summary %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockLLM().Generate(ctx, prompt); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
