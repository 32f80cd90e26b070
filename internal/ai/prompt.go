package ai

import (
	"fmt"
)

const analysisSchema = `{
  "attendance": {"present": ["name"], "absent": ["name"]},
  "personalProgress": [
    {"name": "name", "completed": ["item"], "inProgress": ["item"], "blockers": ["item"]}
  ],
  "workload": [{"name": "name", "load": "low | medium | high", "tasks": ["task"]}],
  "actionItems": [{"task": "task", "owner": "name", "due": "date or empty"}],
  "decisions": ["decision"],
  "summary": {"overview": "3-5 sentences", "priorityTasks": ["task"], "keyPoints": ["point"]},
  "participants": ["name"]
}`

// BuildPrompt builds the system and user prompts for session analysis
func BuildPrompt(transcript string, context string) (string, string) {
	systemPrompt := `You analyze transcripts of recorded team sessions.
Be accurate, neutral and factual.
Do NOT invent information; only use what the transcript contains.
Return valid JSON only.
Every field is REQUIRED. Use empty arrays [] or empty strings "" when there is no data.`

	userPrompt := fmt.Sprintf(`Transcript:
"""
%s
"""

Context: %s

Tasks:
1. List who attended and anyone mentioned as absent.
2. For each person, list what they completed, what is in progress, and their blockers.
3. Estimate each person's workload and list their tasks.
4. Extract clear action items with owner and due date when stated.
5. List decisions that were made.
6. Write a short overview, the priority tasks and the key points.
7. List every participant by name.

Return JSON exactly in this format:

%s`, transcript, context, analysisSchema)

	return systemPrompt, userPrompt
}

// BuildTranslationPrompt builds the fixed instruction used to translate an
// analysis document without changing its structure.
func BuildTranslationPrompt(document []byte, targetLanguage string) (string, string) {
	systemPrompt := fmt.Sprintf(`You translate JSON documents into the language with tag %q.
Translate every string value.
Do NOT translate person names; copy them unchanged.
Do NOT add, remove, rename or reorder keys or array elements.
Return only the translated JSON object.`, targetLanguage)

	userPrompt := fmt.Sprintf("Translate this document:\n\n%s", document)
	return systemPrompt, userPrompt
}
