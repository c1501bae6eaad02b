package coursequiz

import (
	"fmt"
	"strings"
)

// buildGenerationPrompt builds the instruction sent to the completion
// provider for one quiz.
func buildGenerationPrompt(courseTitle, courseContext string, difficulty Difficulty, count int) string {
	var sb strings.Builder

	sb.WriteString("You are an instructional design expert who writes high-quality multiple choice quizzes.\n\n")
	sb.WriteString("Your job is to write questions based ONLY on the content provided below.\n\n")
	sb.WriteString(fmt.Sprintf("Difficulty level: %s\n\n", difficulty.Guidance()))

	sb.WriteString("STRICT RULES:\n")
	sb.WriteString("1. Only ask about the provided content\n")
	sb.WriteString("2. Every question has exactly 4 options\n")
	sb.WriteString("3. Exactly one option is correct\n")
	sb.WriteString("4. Wrong options are plausible but clearly incorrect\n")
	sb.WriteString("5. Give a clear explanation for every answer\n")
	sb.WriteString("6. Use clear, professional language and avoid ambiguous wording\n")
	sb.WriteString("7. Never give the answer away in the question text\n\n")

	sb.WriteString("RESPONSE FORMAT (strict JSON):\n")
	sb.WriteString("[\n")
	sb.WriteString("  {\n")
	sb.WriteString("    \"question\": \"Question text?\",\n")
	sb.WriteString("    \"options\": [\"Option A\", \"Option B\", \"Option C\", \"Option D\"],\n")
	sb.WriteString("    \"correctOptionIndex\": 0,\n")
	sb.WriteString("    \"explanation\": \"Why this answer is correct\"\n")
	sb.WriteString("  }\n")
	sb.WriteString("]\n\n")
	sb.WriteString("correctOptionIndex is the 0-based index of the correct option (0 to 3).\n")
	sb.WriteString("IMPORTANT: Answer with the JSON array only, no text before or after it and no markdown fences.\n\n")

	sb.WriteString(fmt.Sprintf("Content of the course %q:\n\n", courseTitle))
	sb.WriteString(courseContext)
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Write %d multiple choice questions based on this content.\n", count))
	sb.WriteString("Cover different parts of the course.\n")
	sb.WriteString("Return nothing but the JSON array.\n")

	return sb.String()
}
