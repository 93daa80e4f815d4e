package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/MareskoY/tutor-ai/domain/repositories"
)

// MockLLM is used when no Gemini key is configured. It summarizes by
// counting transcript lines so the summary endpoint stays usable offline.
type MockLLM struct{}

// NewMockLLM creates a new mock model
func NewMockLLM() repositories.LargeLanguageModel {
	return &MockLLM{}
}

// Generate implements repositories.LargeLanguageModel
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var lines int
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "user:") || strings.HasPrefix(line, "assistant:") {
			lines++
		}
	}
	return fmt.Sprintf("The student and the tutor exchanged %d messages during the call.", lines), nil
}
