package normalize

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"tabscribe/internal/model"
)

const ph = "[omitted]"

type fakeTranslator struct {
	calls atomic.Int32
	out   string
	err   error
}

func (f *fakeTranslator) Translate(ctx context.Context, doc []byte, target string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

func asciiRecord() model.AnalysisRecord {
	rec := model.EmptyAnalysis()
	rec.Attendance.Present = []string{"Ana", "Ben"}
	rec.PersonalProgress = []model.PersonProgress{{Name: "Ana", Completed: []string{"login page"}, InProgress: []string{}, Blockers: []string{}}}
	rec.Workload = []model.WorkloadEntry{{Name: "Ben", Load: "high", Tasks: []string{"billing"}}}
	rec.ActionItems = []model.ActionItem{{Task: "Ship beta", Owner: "Ben", Due: "Friday"}}
	rec.Decisions = []string{"Freeze scope"}
	rec.Summary = model.Summary{Overview: "Sprint review.", PriorityTasks: []string{"Ship beta"}, KeyPoints: []string{"On track"}}
	rec.Participants = []string{"Ana", "Ben"}
	return rec
}

func frenchRecord() model.AnalysisRecord {
	rec := asciiRecord()
	rec.Attendance.Present = []string{"Zoé", "Ben"}
	rec.Participants = []string{"Zoé", "Ben"}
	rec.PersonalProgress[0].Name = "Zoé"
	rec.PersonalProgress[0].Completed = []string{"page de connexion terminée"}
	rec.ActionItems[0].Task = "Livrer la bêta"
	rec.Decisions = []string{"Périmètre gelé", "Revue jeudi"}
	rec.Summary.Overview = "Revue de sprint réussie."
	return rec
}

func TestIsASCII(t *testing.T) {
	cases := map[string]bool{
		"":                 true,
		"Hello, world!":    true,
		"tab\tand\r\nline": true,
		"café":             false,
		"bell\a":           false,
		"\x7f":             false,
		"日本語":              false,
	}
	for in, want := range cases {
		if got := IsASCII(in); got != want {
			t.Errorf("IsASCII(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsAlreadyTargetLanguageIgnoresNames(t *testing.T) {
	rec := asciiRecord()
	rec.Participants = []string{"Zoé"}
	rec.ActionItems[0].Owner = "Zoé"
	if !IsAlreadyTargetLanguage(rec) {
		t.Fatal("non-ASCII names must not count as foreign text")
	}
	rec.Summary.KeyPoints = []string{"réussi"}
	if IsAlreadyTargetLanguage(rec) {
		t.Fatal("non-ASCII free text must be detected")
	}
}

func TestASCIIRecordNeverTranslated(t *testing.T) {
	tr := &fakeTranslator{out: `{}`}
	n := New(tr, "en", ph)

	for _, src := range []string{"", "fr", "english"} {
		out := n.Normalize(context.Background(), asciiRecord(), model.Transcript{Text: "hello"}, src)
		if out.Translated {
			t.Errorf("source %q: ASCII record marked translated", src)
		}
	}
	if tr.calls.Load() != 0 {
		t.Fatalf("translator called %d times for ASCII input", tr.calls.Load())
	}
}

func TestDeclaredTargetLanguageSkipsTranslation(t *testing.T) {
	tr := &fakeTranslator{out: `{}`}
	n := New(tr, "en", ph)

	rec := asciiRecord()
	rec.Summary.Overview = "Naïve approach rejected."
	for _, src := range []string{"en", "en-GB", "English"} {
		out := n.Normalize(context.Background(), rec, model.Transcript{}, src)
		if out.Analysis.Summary.Overview != ph {
			t.Errorf("source %q: non-ASCII text should fall back, got %q", src, out.Analysis.Summary.Overview)
		}
		if out.Language != "en" {
			t.Errorf("source %q: language = %q", src, out.Language)
		}
	}
	if tr.calls.Load() != 0 {
		t.Fatal("translation must be skipped when the source is already the target")
	}
}

func TestTranslateMergesOverSkeleton(t *testing.T) {
	// Partial response: one decision only, overview missing, action item
	// task translated, names altered by the model.
	tr := &fakeTranslator{out: `{
		"personalProgress": [{"name": "Zoe", "completed": ["login page finished"]}],
		"actionItems": [{"task": "Ship the beta", "owner": "Somebody"}],
		"decisions": ["Scope frozen"],
		"participants": ["X", "Y"]
	}`}
	n := New(tr, "en", ph)

	got, err := n.Translate(context.Background(), frenchRecord())
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got.PersonalProgress[0].Completed[0] != "login page finished" {
		t.Errorf("completed = %v", got.PersonalProgress[0].Completed)
	}
	if got.PersonalProgress[0].Name != "Zoé" || got.ActionItems[0].Owner != "Ben" {
		t.Error("names must keep their original value")
	}
	if got.ActionItems[0].Task != "Ship the beta" || got.ActionItems[0].Due != "Friday" {
		t.Errorf("action item = %+v", got.ActionItems[0])
	}
	if len(got.Decisions) != 2 || got.Decisions[0] != "Scope frozen" || got.Decisions[1] != "Revue jeudi" {
		t.Errorf("decisions = %v", got.Decisions)
	}
	if got.Summary.Overview != "Revue de sprint réussie." {
		t.Errorf("omitted overview should keep original, got %q", got.Summary.Overview)
	}
	if len(got.Participants) != 2 || got.Participants[0] != "Zoé" {
		t.Errorf("participants = %v", got.Participants)
	}
}

func TestTranslateMalformedResponse(t *testing.T) {
	n := New(&fakeTranslator{out: "sorry, I cannot do that"}, "en", ph)
	got, err := n.Translate(context.Background(), frenchRecord())
	if !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("expected ErrTranslationFailed, got %v", err)
	}
	if got.Decisions[0] != "Périmètre gelé" {
		t.Error("failed translation must return the original record")
	}
}

func TestNormalizeFallbackOnFailure(t *testing.T) {
	failures := []Translator{
		&fakeTranslator{err: errors.New("service unavailable")},
		&fakeTranslator{out: "not json"},
		nil,
	}
	for i, tr := range failures {
		n := New(tr, "en", ph)
		orig := frenchRecord()
		out := n.Normalize(context.Background(), orig, model.Transcript{}, "fr")
		if out.Translated {
			t.Errorf("case %d: marked translated", i)
		}

		want := Fallback(orig, ph)
		check := func(field, got, original string) {
			if got != original && got != ph {
				t.Errorf("case %d: %s = %q, neither original nor placeholder", i, field, got)
			}
			if !IsASCII(got) {
				t.Errorf("case %d: %s is not ASCII: %q", i, field, got)
			}
		}
		check("overview", out.Analysis.Summary.Overview, orig.Summary.Overview)
		check("decision0", out.Analysis.Decisions[0], orig.Decisions[0])
		check("decision1", out.Analysis.Decisions[1], orig.Decisions[1])
		check("participant0", out.Analysis.Participants[0], orig.Participants[0])
		check("task", out.Analysis.ActionItems[0].Task, orig.ActionItems[0].Task)
		if out.Analysis.Decisions[1] != "Revue jeudi" {
			t.Errorf("case %d: ASCII text must be kept", i)
		}
		if out.Analysis.Participants[0] != want.Participants[0] || out.Analysis.Participants[0] != ph {
			t.Errorf("case %d: non-ASCII name should be replaced", i)
		}
	}
}

func TestNormalizeTranslatedThenFallback(t *testing.T) {
	tr := &fakeTranslator{out: `{"decisions": ["Scope frozen", "Review on Thursday"], "summary": {"overview": "Successful sprint review."}}`}
	n := New(tr, "en", ph)

	out := n.Normalize(context.Background(), frenchRecord(), model.Transcript{}, "fr")
	if !out.Translated || out.Language != "en" {
		t.Fatalf("expected translated output, got %+v", out)
	}
	if out.Analysis.Summary.Overview != "Successful sprint review." {
		t.Errorf("overview = %q", out.Analysis.Summary.Overview)
	}
	// Untranslated non-ASCII text still falls back.
	if out.Analysis.ActionItems[0].Task != ph {
		t.Errorf("task = %q", out.Analysis.ActionItems[0].Task)
	}
	// Names are exempt from translation but not from the fallback.
	if out.Analysis.Attendance.Present[0] != ph || out.Analysis.Attendance.Present[1] != "Ben" {
		t.Errorf("present = %v", out.Analysis.Attendance.Present)
	}
}

func TestTranscriptOnlyFallsBack(t *testing.T) {
	tr := &fakeTranslator{out: `{}`}
	n := New(tr, "en", ph)

	transcript := model.Transcript{
		Text:     "Bonjour à tous. Let's start.",
		Duration: 12,
		Segments: []model.TranscriptSegment{
			{Start: 0, End: 2, Text: "Bonjour à tous."},
			{Start: 2, End: 12, Text: "Let's start."},
		},
	}
	out := n.Normalize(context.Background(), asciiRecord(), transcript, "")

	if tr.calls.Load() != 0 {
		t.Fatal("transcripts are never translated")
	}
	if out.Transcript.Text != ph {
		t.Errorf("text = %q", out.Transcript.Text)
	}
	if out.Transcript.Segments[0].Text != ph || out.Transcript.Segments[1].Text != "Let's start." {
		t.Errorf("segments = %+v", out.Transcript.Segments)
	}
	if out.Transcript.Segments[1].End != 12 || out.Transcript.Duration != 12 {
		t.Error("timings must be preserved")
	}
	if transcript.Segments[0].Text != "Bonjour à tous." {
		t.Error("input transcript must not be modified")
	}
}

func TestNormalizeOutputAlwaysASCII(t *testing.T) {
	n := New(&fakeTranslator{out: `{"decisions": ["Décision traduite"]}`}, "en", ph)
	out := n.Normalize(context.Background(), frenchRecord(), model.Transcript{Text: "ça va"}, "fr")

	doc, err := model.MarshalAnalysis(out.Analysis)
	if err != nil {
		t.Fatal(err)
	}
	if !IsASCII(string(doc)) {
		t.Fatalf("analysis contains non-ASCII: %s", doc)
	}
	if !IsASCII(out.Transcript.Text) || strings.Contains(out.Transcript.Text, "ç") {
		t.Fatalf("transcript contains non-ASCII: %q", out.Transcript.Text)
	}
}

func TestNewRejectsNonASCIIPlaceholder(t *testing.T) {
	n := New(nil, "en", "[omis é]")
	if n.Placeholder() != DefaultPlaceholder {
		t.Fatalf("placeholder = %q", n.Placeholder())
	}
}

func TestWithTarget(t *testing.T) {
	n := New(nil, "en", ph)
	fr, err := n.WithTarget("fr")
	if err != nil {
		t.Fatalf("WithTarget: %v", err)
	}
	if fr.Target() != "fr" || n.Target() != "en" {
		t.Errorf("targets = %q / %q", fr.Target(), n.Target())
	}
	if fr.Placeholder() != ph {
		t.Errorf("placeholder not carried over: %q", fr.Placeholder())
	}
	if _, err := n.WithTarget("not a tag!"); err == nil {
		t.Error("expected error for invalid tag")
	}
}
