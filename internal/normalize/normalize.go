package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("normalize")

// ErrTranslationFailed wraps any failure of the translation step.
var ErrTranslationFailed = errors.New("normalize: translation failed")

// DefaultPlaceholder replaces text that cannot be represented in ASCII.
const DefaultPlaceholder = "[non-ASCII text omitted]"

// Translator translates a JSON document into targetLanguage and returns
// the raw JSON produced by the service.
type Translator interface {
	Translate(ctx context.Context, document []byte, targetLanguage string) ([]byte, error)
}

// Normalizer turns analysis results into ASCII-safe export records.
type Normalizer struct {
	translator  Translator
	target      language.Tag
	placeholder string
}

// New creates a normalizer. translator may be nil, in which case every
// record goes straight to the ASCII fallback.
func New(translator Translator, targetLanguage, placeholder string) *Normalizer {
	tag, err := language.Parse(targetLanguage)
	if err != nil {
		log.WithField("language", targetLanguage).Warn("unknown target language, using en")
		tag = language.English
	}
	if placeholder == "" || !IsASCII(placeholder) {
		placeholder = DefaultPlaceholder
	}
	return &Normalizer{translator: translator, target: tag, placeholder: placeholder}
}

// Target returns the target language tag.
func (n *Normalizer) Target() string {
	return n.target.String()
}

// WithTarget returns a copy that translates into targetLanguage.
func (n *Normalizer) WithTarget(targetLanguage string) (*Normalizer, error) {
	tag, err := language.Parse(targetLanguage)
	if err != nil {
		return nil, fmt.Errorf("unknown target language %q: %w", targetLanguage, err)
	}
	out := *n
	out.target = tag
	return &out, nil
}

// Placeholder returns the substitution text.
func (n *Normalizer) Placeholder() string {
	return n.placeholder
}

// Translate asks the translator for a schema-preserving translation and
// merges the response over rec. Fields the response omits, empties or
// mistypes keep their original value; names are never taken from the
// response.
func (n *Normalizer) Translate(ctx context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error) {
	orig := rec.Clone()
	orig.Fill()

	if n.translator == nil {
		return orig, fmt.Errorf("%w: no translator configured", ErrTranslationFailed)
	}

	doc, err := model.MarshalAnalysis(orig)
	if err != nil {
		return orig, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	out, err := n.translator.Translate(ctx, doc, n.target.String())
	if err != nil {
		return orig, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	translated, _, err := model.DecodeAnalysis(out)
	if err != nil {
		return orig, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	return merge(orig, translated), nil
}

// Normalize produces the export form of an analysis and its transcript. It
// never fails: translation problems are logged and the result degrades to
// the placeholder form. sourceLanguage may be empty when unknown.
func (n *Normalizer) Normalize(ctx context.Context, rec model.AnalysisRecord, transcript model.Transcript, sourceLanguage string) model.NormalizedExportRecord {
	rec = rec.Clone()
	rec.Fill()

	lang := sourceLanguage
	translated := false
	switch {
	case n.matchesTarget(sourceLanguage):
		lang = n.Target()
	case IsAlreadyTargetLanguage(rec):
		if sourceLanguage == "" {
			lang = n.Target()
		}
	default:
		tr, err := n.Translate(ctx, rec)
		if err != nil {
			log.WithError(err).WithField("source", sourceLanguage).Warn("translation unavailable, using ASCII fallback")
		} else {
			rec = tr
			translated = true
			lang = n.Target()
		}
	}

	if !IsASCII(lang) {
		lang = ""
	}
	return model.NormalizedExportRecord{
		Language:   lang,
		Translated: translated,
		Analysis:   Fallback(rec, n.placeholder),
		Transcript: FallbackTranscript(transcript, n.placeholder),
	}
}

// matchesTarget compares a declared source language with the target. Both
// BCP 47 tags ("en-US") and English language names ("english", as returned
// by some transcription services) are accepted.
func (n *Normalizer) matchesTarget(source string) bool {
	source = strings.TrimSpace(source)
	if source == "" {
		return false
	}
	targetBase, _ := n.target.Base()
	if tag, err := language.Parse(source); err == nil {
		base, _ := tag.Base()
		return base == targetBase
	}
	name := display.English.Languages().Name(language.Make(targetBase.String()))
	return strings.EqualFold(source, name)
}

func merge(orig, tr model.AnalysisRecord) model.AnalysisRecord {
	out := orig.Clone()

	for i := range out.PersonalProgress {
		if i >= len(tr.PersonalProgress) {
			break
		}
		p, t := &out.PersonalProgress[i], tr.PersonalProgress[i]
		p.Completed = mergeStrings(p.Completed, t.Completed)
		p.InProgress = mergeStrings(p.InProgress, t.InProgress)
		p.Blockers = mergeStrings(p.Blockers, t.Blockers)
	}
	for i := range out.Workload {
		if i >= len(tr.Workload) {
			break
		}
		w, t := &out.Workload[i], tr.Workload[i]
		w.Load = mergeString(w.Load, t.Load)
		w.Tasks = mergeStrings(w.Tasks, t.Tasks)
	}
	for i := range out.ActionItems {
		if i >= len(tr.ActionItems) {
			break
		}
		a, t := &out.ActionItems[i], tr.ActionItems[i]
		a.Task = mergeString(a.Task, t.Task)
		a.Due = mergeString(a.Due, t.Due)
	}
	out.Decisions = mergeStrings(out.Decisions, tr.Decisions)
	out.Summary.Overview = mergeString(out.Summary.Overview, tr.Summary.Overview)
	out.Summary.PriorityTasks = mergeStrings(out.Summary.PriorityTasks, tr.Summary.PriorityTasks)
	out.Summary.KeyPoints = mergeStrings(out.Summary.KeyPoints, tr.Summary.KeyPoints)
	return out
}

func mergeString(orig, tr string) string {
	if strings.TrimSpace(tr) == "" {
		return orig
	}
	return tr
}

// mergeStrings keeps the original length; missing positions keep the
// original element.
func mergeStrings(orig, tr []string) []string {
	out := make([]string, len(orig))
	for i := range orig {
		if i < len(tr) {
			out[i] = mergeString(orig[i], tr[i])
		} else {
			out[i] = orig[i]
		}
	}
	return out
}
