package repository

import (
	"bytes"
	"encoding/json"

	"tabscribe/internal/model"
)

// Shape is the stored form of an analysis blob, discovered by probing.
// It is either CanonicalShape or LegacyShape.
type Shape interface {
	shape()
}

// CanonicalShape is a nested analysis object.
type CanonicalShape struct {
	Fields map[string]json.RawMessage
}

// LegacyShape is a record written before the nested analysis existed. The
// blob held only the summary list, either bare or inside a flat object
// alongside other top-level fields.
type LegacyShape struct {
	Summary []string
	Fields  map[string]json.RawMessage
}

func (CanonicalShape) shape() {}
func (LegacyShape) shape()    {}

// Duplicated holds the columns written next to the blob.
type Duplicated struct {
	Participants []string
	ActionItems  []model.ActionItem
	Decisions    []string
}

// probeShape classifies a stored blob. Anything that is not an object is
// legacy, as is an object whose summary is a list.
func probeShape(blob []byte) Shape {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 {
		return LegacyShape{}
	}

	switch trimmed[0] {
	case '{':
		var fields map[string]json.RawMessage
		if json.Unmarshal(trimmed, &fields) != nil || fields == nil {
			return LegacyShape{}
		}
		if isArray(fields["summary"]) {
			return LegacyShape{Summary: model.DecodeStrings(fields["summary"]), Fields: fields}
		}
		return CanonicalShape{Fields: fields}
	case '[':
		return LegacyShape{Summary: model.DecodeStrings(trimmed)}
	default:
		return LegacyShape{}
	}
}

// Reconcile builds the canonical record for either shape. It never fails;
// anything absent becomes its empty default.
func Reconcile(s Shape, dup Duplicated) model.AnalysisRecord {
	switch v := s.(type) {
	case CanonicalShape:
		rec := model.AnalysisFromFields(v.Fields)
		if _, ok := v.Fields["participants"]; !ok {
			rec.Participants = cloneOrEmpty(dup.Participants)
		}
		if _, ok := v.Fields["actionItems"]; !ok {
			rec.ActionItems = append([]model.ActionItem{}, dup.ActionItems...)
		}
		if _, ok := v.Fields["decisions"]; !ok {
			rec.Decisions = cloneOrEmpty(dup.Decisions)
		}
		rec.Fill()
		return rec

	case LegacyShape:
		// Fields beside a list-valued summary decode like any other object;
		// only the summary itself comes from the list.
		rec := model.EmptyAnalysis()
		if v.Fields != nil {
			rec = model.AnalysisFromFields(v.Fields)
		}
		rec.Summary = model.Summary{PriorityTasks: cloneOrEmpty(v.Summary), KeyPoints: []string{}}

		if len(dup.Participants) > 0 {
			rec.Participants = cloneOrEmpty(dup.Participants)
		}
		if len(dup.ActionItems) > 0 {
			rec.ActionItems = append([]model.ActionItem{}, dup.ActionItems...)
		}
		if len(dup.Decisions) > 0 {
			rec.Decisions = cloneOrEmpty(dup.Decisions)
		}

		if _, ok := v.Fields["attendance"]; !ok {
			rec.Attendance.Present = cloneOrEmpty(rec.Participants)
		}
		rec.Fill()
		return rec

	default:
		return model.EmptyAnalysis()
	}
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func cloneOrEmpty(s []string) []string {
	return append([]string{}, s...)
}
