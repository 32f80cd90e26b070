package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a payload that must be a JSON object is not one.
var ErrNotObject = errors.New("payload is not a JSON object")

// DecodeAnalysis decodes an externally produced analysis document.
//
// Every field follows the same rule: a value of the wrong JSON type decodes to
// the field's empty default, and list elements of the wrong type are skipped.
// The returned slice names the top-level fields that were absent.
func DecodeAnalysis(data []byte) (AnalysisRecord, []string, error) {
	fields := object(data)
	if fields == nil {
		return EmptyAnalysis(), nil, ErrNotObject
	}

	var missing []string
	for _, k := range TopLevelFields {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}

	rec := AnalysisFromFields(fields)
	return rec, missing, nil
}

// AnalysisFromFields builds a canonical record from an already split object.
func AnalysisFromFields(fields map[string]json.RawMessage) AnalysisRecord {
	var rec AnalysisRecord

	if att := object(fields["attendance"]); att != nil {
		rec.Attendance.Present = strs(att["present"])
		rec.Attendance.Absent = strs(att["absent"])
	}

	for _, o := range objects(fields["personalProgress"]) {
		rec.PersonalProgress = append(rec.PersonalProgress, PersonProgress{
			Name:       str(o["name"]),
			Completed:  strs(o["completed"]),
			InProgress: strs(o["inProgress"]),
			Blockers:   strs(o["blockers"]),
		})
	}

	for _, o := range objects(fields["workload"]) {
		rec.Workload = append(rec.Workload, WorkloadEntry{
			Name:  str(o["name"]),
			Load:  str(o["load"]),
			Tasks: strs(o["tasks"]),
		})
	}

	rec.ActionItems = DecodeActionItems(fields["actionItems"])
	rec.Decisions = strs(fields["decisions"])

	if sum := object(fields["summary"]); sum != nil {
		rec.Summary.Overview = str(sum["overview"])
		rec.Summary.PriorityTasks = strs(sum["priorityTasks"])
		rec.Summary.KeyPoints = strs(sum["keyPoints"])
	}

	rec.Participants = strs(fields["participants"])

	rec.Fill()
	return rec
}

// DecodeActionItems decodes a list of action item objects.
func DecodeActionItems(raw json.RawMessage) []ActionItem {
	items := []ActionItem{}
	for _, o := range objects(raw) {
		items = append(items, ActionItem{
			Task:  str(o["task"]),
			Owner: str(o["owner"]),
			Due:   str(o["due"]),
		})
	}
	return items
}

// DecodeStrings decodes a list of strings, skipping non-string elements.
func DecodeStrings(raw json.RawMessage) []string {
	return strs(raw)
}

// MarshalAnalysis encodes a record in its canonical shape.
func MarshalAnalysis(rec AnalysisRecord) ([]byte, error) {
	rec = rec.Clone()
	rec.Fill()
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	return data, nil
}

func object(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func objects(raw json.RawMessage) []map[string]json.RawMessage {
	var elems []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &elems) != nil {
		return nil
	}
	out := make([]map[string]json.RawMessage, 0, len(elems))
	for _, e := range elems {
		if m := object(e); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func str(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func strs(raw json.RawMessage) []string {
	out := []string{}
	var elems []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &elems) != nil {
		return out
	}
	for _, e := range elems {
		if string(bytes.TrimSpace(e)) == "null" {
			continue
		}
		var s string
		if json.Unmarshal(e, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}
