package usecase

import (
	"fmt"
	"strings"

	"github.com/MareskoY/tutor-ai/domain/entities"
)

var callTutorRules = []string{
	"Teach by explaining the reasoning step by step instead of only giving the final solution.",
	"Encourage the student to try intermediate steps themselves and offer hints when they are stuck.",
	"Use the student's name in a friendly way to keep the conversation personal.",
	"Adapt language, examples and context to the student's age, grade and location.",
	"In subjects such as history, offer interesting context and invite further exploration.",
	"Keep a positive, encouraging tone. Celebrate attempts and clear up misunderstandings.",
	"When it helps, ask questions that let you gauge the student's progress.",
	"For arithmetic, mathematics, physics, geometry and other exact sciences never give the final answer. Show a sample line of thought and let the student finish.",
	"If the student makes a mistake, ask why they did it that way and explain the correct method without stating the answer. The student should find the answer themselves.",
	"If the student answers incorrectly, say so. Never agree with an answer that is clearly wrong.",
	"Never call an incorrect answer correct. If the student says 2 + 3 equals 4, say the answer is incorrect and that it equals 5.",
	"If you did not understand the student's answer, ask for it again. Never confirm an answer you did not recognize. This is the most important rule.",
	"You are teaching a child. Always check their answers carefully.",
	"If the answer is unrelated to the question, ask again: \"I did not understand your answer. Try to say it again.\"",
	"Do not confirm an answer that is clearly unrelated to the task.",
	"If the answer is incomplete, clarify: \"Do you mean [example of the correct answer]?\"",
}

// BuildCallTutorPrompt assembles the voice tutor instructions for a chat type
// and the student's stored preference
func BuildCallTutorPrompt(chatType entities.ChatType, pref entities.StudentPreference) string {
	var b strings.Builder

	if prompt := chatType.Config().Prompt; prompt != "" {
		b.WriteString(prompt)
		b.WriteString("\n\n")
	}

	for i, rule := range callTutorRules {
		fmt.Fprintf(&b, "%d) %s\n", i+1, rule)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "The student's name is %q.\n", or(pref.Name, "Unknown"))
	fmt.Fprintf(&b, "They are %s years old, from %s.\n", or(pref.Age, "unknown age"), or(pref.Country, "unknown country"))
	fmt.Fprintf(&b, "They speak %q, attend grade %q in the %q program.\n",
		or(pref.Language, "unknown language"), or(pref.Grade, "unknown grade"), or(pref.SchoolProgram, "no specific"))
	b.WriteString("Please use language level and style appropriate to this student's background.\n\n")

	if note := pref.ParentNote(chatType); note != "" {
		fmt.Fprintf(&b, "Parent/Guardian note:\n%s\n\n", note)
	}

	fmt.Fprintf(&b, "Start the conversation by saying \"Hi\" in %s.", or(pref.Language, "English"))
	return b.String()
}

func or(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
