package ai

import (
	"strings"
)

// DetectContext detects the session type based on simple rules
// Returns: "meeting", "lecture", or "thinking"
func DetectContext(transcript string) string {
	transcript = strings.ToLower(transcript)

	meetingKeywords := []string{
		"meeting", "project", "deadline", "sprint", "report",
		"customer", "client", "team", "standup", "stand-up",
		"agreed", "decide", "approve", "blocker",
		"task", "ticket", "action item",
	}

	lectureKeywords := []string{
		"lecture", "chapter", "for example", "definition",
		"concept", "principle", "method", "homework",
		"students", "explain",
	}

	meetingCount := 0
	lectureCount := 0

	for _, keyword := range meetingKeywords {
		if strings.Contains(transcript, keyword) {
			meetingCount++
		}
	}

	for _, keyword := range lectureKeywords {
		if strings.Contains(transcript, keyword) {
			lectureCount++
		}
	}

	if meetingCount > 0 && meetingCount >= lectureCount {
		return "meeting"
	}
	if lectureCount > 0 {
		return "lecture"
	}

	return "thinking"
}
