package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tabscribe/internal/model"
)

// ErrNoRecords is returned by Ask when there is nothing to answer from.
var ErrNoRecords = errors.New("no analyzed sessions available")

const askSystemPrompt = `You answer questions about recorded work sessions using only the session data provided.

RULES:
- Answer only from the data. Do not invent names, dates or tasks.
- If the data does not contain the answer, say "No information found in the recorded sessions."
- Be brief and direct.
- Return JSON: {"answer": "<text>"}`

// Ask answers a free-form question using previously analyzed records as
// context.
func (c *Client) Ask(ctx context.Context, question string, records []model.Record) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}
	contextText := buildAskContext(records)
	log.WithField("records", len(records)).WithField("chars", len(contextText)).Debug("ask request")

	userPrompt := fmt.Sprintf("Session data:\n\n%s\nQuestion: %s", contextText, question)
	content, err := c.complete(ctx, askSystemPrompt, userPrompt)
	if err != nil {
		return "", err
	}

	var out struct {
		Answer json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil || len(out.Answer) == 0 {
		return strings.TrimSpace(content), nil
	}
	var answer string
	if err := json.Unmarshal(out.Answer, &answer); err != nil {
		return string(out.Answer), nil
	}
	return strings.TrimSpace(answer), nil
}

func buildAskContext(records []model.Record) string {
	var b strings.Builder
	for i, rec := range records {
		a := rec.Analysis
		fmt.Fprintf(&b, "=== Session %d (ID: %s, %s) ===\n", i+1, rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"))
		if a.Summary.Overview != "" {
			fmt.Fprintf(&b, "Overview: %s\n", a.Summary.Overview)
		}
		if len(a.Participants) > 0 {
			fmt.Fprintf(&b, "Participants: %s\n", strings.Join(a.Participants, ", "))
		}
		writeItems(&b, "Key points:", a.Summary.KeyPoints)
		writeItems(&b, "Decisions:", a.Decisions)
		if len(a.ActionItems) > 0 {
			b.WriteString("Action items:\n")
			for _, it := range a.ActionItems {
				fmt.Fprintf(&b, "- %s (owner: %s, due: %s)\n", it.Task, orDash(it.Owner), orDash(it.Due))
			}
		}
		for _, p := range a.PersonalProgress {
			if len(p.Blockers) > 0 {
				fmt.Fprintf(&b, "Blockers for %s: %s\n", p.Name, strings.Join(p.Blockers, "; "))
			}
		}
		if rec.Transcript.Text != "" {
			fmt.Fprintf(&b, "Transcript: %s\n", truncateString(rec.Transcript.Text, 500))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeItems(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading + "\n")
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
