package model

// AnalysisRecord is the canonical structured analysis of one session.
type AnalysisRecord struct {
	Attendance       Attendance       `json:"attendance" yaml:"attendance"`
	PersonalProgress []PersonProgress `json:"personalProgress" yaml:"personalProgress"`
	Workload         []WorkloadEntry  `json:"workload" yaml:"workload"`
	ActionItems      []ActionItem     `json:"actionItems" yaml:"actionItems"`
	Decisions        []string         `json:"decisions" yaml:"decisions"`
	Summary          Summary          `json:"summary" yaml:"summary"`
	Participants     []string         `json:"participants" yaml:"participants"`
}

// Attendance lists who was present and who was expected but absent.
type Attendance struct {
	Present []string `json:"present" yaml:"present"`
	Absent  []string `json:"absent" yaml:"absent"`
}

// PersonProgress is the per-person status reported during the session.
type PersonProgress struct {
	Name       string   `json:"name" yaml:"name"`
	Completed  []string `json:"completed" yaml:"completed"`
	InProgress []string `json:"inProgress" yaml:"inProgress"`
	Blockers   []string `json:"blockers" yaml:"blockers"`
}

// WorkloadEntry describes how loaded a participant is.
type WorkloadEntry struct {
	Name  string   `json:"name" yaml:"name"`
	Load  string   `json:"load" yaml:"load"`
	Tasks []string `json:"tasks" yaml:"tasks"`
}

// ActionItem is a follow-up task agreed during the session.
type ActionItem struct {
	Task  string `json:"task" yaml:"task"`
	Owner string `json:"owner" yaml:"owner"`
	Due   string `json:"due" yaml:"due"`
}

// Summary is the narrative part of the analysis.
type Summary struct {
	Overview      string   `json:"overview" yaml:"overview"`
	PriorityTasks []string `json:"priorityTasks" yaml:"priorityTasks"`
	KeyPoints     []string `json:"keyPoints" yaml:"keyPoints"`
}

// TopLevelFields are the keys every analysis response is expected to carry.
var TopLevelFields = []string{
	"attendance",
	"personalProgress",
	"workload",
	"actionItems",
	"decisions",
	"summary",
	"participants",
}

// EmptyAnalysis returns a record whose every substructure is its empty form.
func EmptyAnalysis() AnalysisRecord {
	var r AnalysisRecord
	r.Fill()
	return r
}

// Fill replaces nil slices with empty ones so the record always serializes
// to the canonical shape ("[]" rather than "null").
func (r *AnalysisRecord) Fill() {
	r.Attendance.Present = orEmpty(r.Attendance.Present)
	r.Attendance.Absent = orEmpty(r.Attendance.Absent)
	if r.PersonalProgress == nil {
		r.PersonalProgress = []PersonProgress{}
	}
	for i := range r.PersonalProgress {
		p := &r.PersonalProgress[i]
		p.Completed = orEmpty(p.Completed)
		p.InProgress = orEmpty(p.InProgress)
		p.Blockers = orEmpty(p.Blockers)
	}
	if r.Workload == nil {
		r.Workload = []WorkloadEntry{}
	}
	for i := range r.Workload {
		r.Workload[i].Tasks = orEmpty(r.Workload[i].Tasks)
	}
	if r.ActionItems == nil {
		r.ActionItems = []ActionItem{}
	}
	r.Decisions = orEmpty(r.Decisions)
	r.Summary.PriorityTasks = orEmpty(r.Summary.PriorityTasks)
	r.Summary.KeyPoints = orEmpty(r.Summary.KeyPoints)
	r.Participants = orEmpty(r.Participants)
}

// Clone returns a deep copy.
func (r AnalysisRecord) Clone() AnalysisRecord {
	out := r
	out.Attendance.Present = cloneStrings(r.Attendance.Present)
	out.Attendance.Absent = cloneStrings(r.Attendance.Absent)
	if r.PersonalProgress != nil {
		out.PersonalProgress = make([]PersonProgress, len(r.PersonalProgress))
		for i, p := range r.PersonalProgress {
			out.PersonalProgress[i] = PersonProgress{
				Name:       p.Name,
				Completed:  cloneStrings(p.Completed),
				InProgress: cloneStrings(p.InProgress),
				Blockers:   cloneStrings(p.Blockers),
			}
		}
	}
	if r.Workload != nil {
		out.Workload = make([]WorkloadEntry, len(r.Workload))
		for i, w := range r.Workload {
			out.Workload[i] = WorkloadEntry{Name: w.Name, Load: w.Load, Tasks: cloneStrings(w.Tasks)}
		}
	}
	if r.ActionItems != nil {
		out.ActionItems = append([]ActionItem(nil), r.ActionItems...)
	}
	out.Decisions = cloneStrings(r.Decisions)
	out.Summary.PriorityTasks = cloneStrings(r.Summary.PriorityTasks)
	out.Summary.KeyPoints = cloneStrings(r.Summary.KeyPoints)
	out.Participants = cloneStrings(r.Participants)
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
