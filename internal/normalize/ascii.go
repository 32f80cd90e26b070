package normalize

import "tabscribe/internal/model"

// IsASCII reports whether s contains only printable ASCII, tab, CR and LF.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// IsAlreadyTargetLanguage reports whether every free-text field of rec is
// printable ASCII. Name fields are not inspected.
func IsAlreadyTargetLanguage(rec model.AnalysisRecord) bool {
	ok := true
	visitFreeText(&rec, func(s *string) {
		if ok && !IsASCII(*s) {
			ok = false
		}
	})
	return ok
}

// visitFreeText calls fn for every free-text field, excluding names.
func visitFreeText(rec *model.AnalysisRecord, fn func(*string)) {
	for i := range rec.PersonalProgress {
		p := &rec.PersonalProgress[i]
		each(p.Completed, fn)
		each(p.InProgress, fn)
		each(p.Blockers, fn)
	}
	for i := range rec.Workload {
		w := &rec.Workload[i]
		fn(&w.Load)
		each(w.Tasks, fn)
	}
	for i := range rec.ActionItems {
		a := &rec.ActionItems[i]
		fn(&a.Task)
		fn(&a.Due)
	}
	each(rec.Decisions, fn)
	fn(&rec.Summary.Overview)
	each(rec.Summary.PriorityTasks, fn)
	each(rec.Summary.KeyPoints, fn)
}

// visitNames calls fn for every person-name field.
func visitNames(rec *model.AnalysisRecord, fn func(*string)) {
	each(rec.Attendance.Present, fn)
	each(rec.Attendance.Absent, fn)
	for i := range rec.PersonalProgress {
		fn(&rec.PersonalProgress[i].Name)
	}
	for i := range rec.Workload {
		fn(&rec.Workload[i].Name)
	}
	for i := range rec.ActionItems {
		fn(&rec.ActionItems[i].Owner)
	}
	each(rec.Participants, fn)
}

func each(ss []string, fn func(*string)) {
	for i := range ss {
		fn(&ss[i])
	}
}

// Fallback replaces every text field that is not printable ASCII, names
// included, with placeholder. rec is not modified.
func Fallback(rec model.AnalysisRecord, placeholder string) model.AnalysisRecord {
	out := rec.Clone()
	out.Fill()
	sub := func(s *string) {
		if !IsASCII(*s) {
			*s = placeholder
		}
	}
	visitFreeText(&out, sub)
	visitNames(&out, sub)
	return out
}

// FallbackTranscript applies the same substitution to the full text and to
// each segment. Timings are kept.
func FallbackTranscript(t model.Transcript, placeholder string) model.Transcript {
	out := model.Transcript{
		Text:     t.Text,
		Duration: t.Duration,
		Language: t.Language,
		Segments: make([]model.TranscriptSegment, len(t.Segments)),
	}
	if !IsASCII(out.Text) {
		out.Text = placeholder
	}
	if !IsASCII(out.Language) {
		out.Language = ""
	}
	for i, s := range t.Segments {
		if !IsASCII(s.Text) {
			s.Text = placeholder
		}
		out.Segments[i] = s
	}
	return out
}
