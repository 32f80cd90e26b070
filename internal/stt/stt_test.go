package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"tabscribe/internal/model"
)

func webmAsset(n int) *model.RawMediaAsset {
	return model.NewRawMediaAsset(make([]byte, n), "audio/webm;codecs=opus", "session.webm")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		asset *model.RawMediaAsset
		max   int64
		want  error
	}{
		{"ok", webmAsset(10), 100, nil},
		{"too large", webmAsset(101), 100, ErrAssetTooLarge},
		{"unsupported", model.NewRawMediaAsset([]byte("x"), "image/png", ""), 100, ErrUnsupportedType},
		{"mp3", model.NewRawMediaAsset([]byte("x"), "audio/mpeg", ""), 100, nil},
		{"m4a", model.NewRawMediaAsset([]byte("x"), "audio/mp4", ""), 100, nil},
		{"flac", model.NewRawMediaAsset([]byte("x"), "audio/flac", ""), 100, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.asset, tt.max)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

type countingProvider struct{ calls atomic.Int32 }

func (p *countingProvider) Name() string { return "counting" }
func (p *countingProvider) Transcribe(ctx context.Context, a *model.RawMediaAsset) (*Result, error) {
	p.calls.Add(1)
	return &Result{Provider: p.Name()}, nil
}

func TestWithLimitsRejectsBeforeCall(t *testing.T) {
	inner := &countingProvider{}
	p := WithLimits(inner, 5)

	if _, err := p.Transcribe(context.Background(), webmAsset(6)); !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected ErrAssetTooLarge, got %v", err)
	}
	if inner.calls.Load() != 0 {
		t.Fatal("oversize asset reached the provider")
	}
	if _, err := p.Transcribe(context.Background(), webmAsset(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Fatal("valid asset should reach the provider")
	}
}

const verboseJSON = `{
  "task": "transcribe",
  "language": "english",
  "duration": 180.2,
  "text": "Good morning everyone. Let's review the sprint.",
  "segments": [
    {"id": 0, "start": 0.0, "end": 4.5, "text": " Good morning everyone."},
    {"id": 1, "start": 4.5, "end": 180.2, "text": " Let's review the sprint."}
  ]
}`

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if _, fh, err := r.FormFile("file"); err != nil || !strings.HasSuffix(fh.Filename, ".webm") {
			t.Errorf("file part missing or misnamed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, verboseJSON)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1", "")
	res, err := p.Transcribe(context.Background(), webmAsset(2048))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Transcript.Duration < 179 || res.Transcript.Duration > 181 {
		t.Errorf("duration = %v, want about 180", res.Transcript.Duration)
	}
	if len(res.Transcript.Segments) != 2 || res.Transcript.Segments[0].Text != "Good morning everyone." {
		t.Errorf("unexpected segments %+v", res.Transcript.Segments)
	}
	if res.Transcript.Language != "english" || res.Provider != "openai" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestOpenAIUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = io.WriteString(w, `{"error":{"message":"Maximum content size limit exceeded","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1", "")
	_, err := p.Transcribe(context.Background(), webmAsset(2048))
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusRequestEntityTooLarge || StatusOf(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", ue.Status)
	}
}

func TestOpenAIEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  ","duration":3,"segments":[]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1", "")
	if _, err := p.Transcribe(context.Background(), webmAsset(2048)); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func newGoogleTestProvider(t *testing.T, h http.HandlerFunc) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewGoogleProvider(context.Background(), "", "AIzaSy"+strings.Repeat("x", 33), "en-US")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	p.endpoint = srv.URL
	p.httpClient = srv.Client()
	return p
}

func TestGoogleTranscribe(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech:recognize" || r.URL.Query().Get("key") == "" {
			t.Errorf("unexpected request %s", r.URL)
		}
		var req googleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Config.Encoding != "WEBM_OPUS" || req.Config.LanguageCode != "en-US" {
			t.Errorf("unexpected config %+v", req.Config)
		}
		_, _ = io.WriteString(w, `{"results":[
			{"alternatives":[{"transcript":"first part","confidence":0.9}],"resultEndTime":"60.5s","languageCode":"en-us"},
			{"alternatives":[{"transcript":"second part","confidence":0.7}],"resultEndTime":"180s"}
		]}`)
	})

	res, err := p.Transcribe(context.Background(), webmAsset(2048))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	tr := res.Transcript
	if tr.Text != "first part second part" || tr.Duration != 180 || tr.Language != "en-us" {
		t.Errorf("unexpected transcript %+v", tr)
	}
	if len(tr.Segments) != 2 || tr.Segments[1].Start != 60.5 {
		t.Errorf("unexpected segments %+v", tr.Segments)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Errorf("confidence = %v", res.Confidence)
	}
}

func TestGoogleUpstreamError(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	})
	_, err := p.Transcribe(context.Background(), webmAsset(2048))
	if StatusOf(err) != http.StatusForbidden || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseGoogleDuration(t *testing.T) {
	cases := map[string]float64{"12.5s": 12.5, "3s": 3, "": 0, "bogus": 0}
	for in, want := range cases {
		if got := parseGoogleDuration(in); got != want {
			t.Errorf("parseGoogleDuration(%q) = %v, want %v", in, got, want)
		}
	}
}
