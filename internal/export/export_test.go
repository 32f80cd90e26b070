package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"

	"tabscribe/internal/model"
)

func sampleRecord() model.NormalizedExportRecord {
	a := model.EmptyAnalysis()
	a.Attendance.Present = []string{"Ana", "Ben"}
	a.Attendance.Absent = []string{"Cy"}
	a.PersonalProgress = []model.PersonProgress{{Name: "Ana", Completed: []string{"login page"}, InProgress: []string{"billing"}, Blockers: []string{}}}
	a.Workload = []model.WorkloadEntry{{Name: "Ben", Load: "high", Tasks: []string{"api", "docs|faq"}}}
	a.ActionItems = []model.ActionItem{{Task: "Ship beta", Owner: "Ben", Due: "Friday"}}
	a.Decisions = []string{"Freeze scope"}
	a.Summary = model.Summary{Overview: "Sprint review.", PriorityTasks: []string{"Ship beta"}, KeyPoints: []string{"On track"}}
	a.Participants = []string{"Ana", "Ben"}
	return model.NormalizedExportRecord{
		RecordID:  "rec-1",
		CreatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Language:  "en",
		Analysis:  a,
		Transcript: model.Transcript{
			Text:     "hello team",
			Duration: 3725,
			Segments: []model.TranscriptSegment{{Start: 0, End: 2, Text: " hello team "}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]string{
		"":         FormatMarkdown,
		"md":       FormatMarkdown,
		"Markdown": FormatMarkdown,
		"json":     FormatJSON,
		" yml ":    FormatYAML,
		"yaml":     FormatYAML,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	doc, err := Render(sampleRecord(), "markdown")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := string(doc.Body)
	for _, want := range []string{
		"# Session report",
		"- Record: rec-1",
		"- Duration: 01:02:05",
		"Sprint review.",
		"- Present: Ana, Ben",
		"### Ana",
		"| Ben | high | api; docs\\|faq |",
		"- [ ] Ship beta (Ben) due Friday",
		"- Freeze scope",
		"[00:00:00] hello team",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("markdown missing %q:\n%s", want, body)
		}
	}
	if doc.Extension != ".md" {
		t.Errorf("extension = %q", doc.Extension)
	}
}

func TestRenderJSONAndYAMLKeepCanonicalShape(t *testing.T) {
	rec := sampleRecord()
	rec.Analysis.Decisions = nil

	doc, err := Render(rec, FormatJSON)
	if err != nil {
		t.Fatalf("Render json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(doc.Body, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	analysis := decoded["analysis"].(map[string]any)
	if _, ok := analysis["decisions"].([]any); !ok {
		t.Errorf("decisions should be an empty array, got %#v", analysis["decisions"])
	}

	doc, err = Render(rec, FormatYAML)
	if err != nil {
		t.Fatalf("Render yaml: %v", err)
	}
	var back model.NormalizedExportRecord
	if err := yaml.Unmarshal(doc.Body, &back); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if back.RecordID != "rec-1" || back.Analysis.ActionItems[0].Owner != "Ben" {
		t.Errorf("yaml lost data: %+v", back)
	}
}

func TestRenderRejectsNonASCII(t *testing.T) {
	rec := sampleRecord()
	rec.Analysis.Summary.Overview = "Revue réussie"
	for _, f := range []string{FormatMarkdown, FormatJSON, FormatYAML} {
		if _, err := Render(rec, f); !errors.Is(err, ErrNonASCII) {
			t.Errorf("%s: expected ErrNonASCII, got %v", f, err)
		}
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Upload(t *testing.T) {
	fake := &fakeS3{}
	u := newS3Uploader(fake, S3Options{Bucket: "reports", Region: "eu-west-1"})
	doc := &Document{Body: []byte("# hi"), ContentType: "text/markdown", Extension: ".md"}

	loc, err := u.Upload(context.Background(), "rec-1", doc)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if loc != "s3://reports/exports/rec-1.md" {
		t.Errorf("location = %q", loc)
	}
	if *fake.input.Bucket != "reports" || *fake.input.Key != "exports/rec-1.md" || *fake.input.ContentType != "text/markdown" {
		t.Errorf("unexpected input: %+v", fake.input)
	}
	if fake.body != "# hi" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestS3UploadError(t *testing.T) {
	boom := errors.New("access denied")
	u := newS3Uploader(&fakeS3{err: boom}, S3Options{Bucket: "reports", Region: "eu-west-1", Prefix: "team"})
	_, err := u.Upload(context.Background(), "rec-1", &Document{Body: []byte("x"), Extension: ".json"})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
	if !strings.Contains(err.Error(), "s3://reports/team/rec-1.json") {
		t.Errorf("error should name the object: %v", err)
	}
}

func TestS3UploadDisabled(t *testing.T) {
	var u *S3Uploader
	if _, err := u.Upload(context.Background(), "rec-1", &Document{}); !errors.Is(err, ErrUploadDisabled) {
		t.Errorf("expected ErrUploadDisabled, got %v", err)
	}
	if _, err := NewS3Uploader(context.Background(), S3Options{Region: "us-east-1"}); err == nil {
		t.Error("expected error for missing bucket")
	}
}
