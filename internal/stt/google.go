package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

const (
	googleEndpoint = "https://speech.googleapis.com"
	googleScope    = "https://www.googleapis.com/auth/cloud-platform"
)

// GoogleProvider implements STT using Google Cloud Speech-to-Text REST API
type GoogleProvider struct {
	projectID    string
	apiKey       string
	languageCode string
	endpoint     string
	httpClient   *http.Client
	useAPIKey    bool // true if using API key, false if using service account
}

// NewGoogleProvider creates a new Google STT provider
// keyData can be either:
//   - An API key (39 characters, typically starts with "AIzaSy")
//   - A file path to a JSON key file (e.g., "./keys/google-service-account.json")
//   - A JSON string containing the service account credentials
func NewGoogleProvider(ctx context.Context, projectID, keyData, languageCode string) (*GoogleProvider, error) {
	if languageCode == "" {
		languageCode = "en-US"
	}
	keyDataTrimmed := strings.TrimSpace(keyData)

	if IsGoogleAPIKey(keyDataTrimmed) {
		log.Info("google STT using API key authentication")
		return &GoogleProvider{
			projectID:    projectID,
			apiKey:       keyDataTrimmed,
			languageCode: languageCode,
			endpoint:     googleEndpoint,
			httpClient:   &http.Client{Timeout: 90 * time.Second},
			useAPIKey:    true,
		}, nil
	}

	var creds *google.Credentials
	var err error
	switch {
	case keyDataTrimmed == "":
		creds, err = google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
	default:
		jsonData := []byte(keyDataTrimmed)
		if !strings.HasPrefix(keyDataTrimmed, "{") {
			jsonData, err = os.ReadFile(keyDataTrimmed)
			if err != nil {
				return nil, fmt.Errorf("failed to read key file %q: %w", keyDataTrimmed, err)
			}
		}
		creds, err = google.CredentialsFromJSON(ctx, jsonData, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials from JSON: %w", err)
		}
	}

	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = 90 * time.Second
	return &GoogleProvider{
		projectID:    projectID,
		languageCode: languageCode,
		endpoint:     googleEndpoint,
		httpClient:   client,
	}, nil
}

// IsGoogleAPIKey reports whether keyData looks like a Google API key rather
// than service account credentials.
func IsGoogleAPIKey(keyData string) bool {
	return len(keyData) == 39 && strings.HasPrefix(keyData, "AIzaSy")
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

type googleRequest struct {
	Config googleConfig `json:"config"`
	Audio  googleAudio  `json:"audio"`
}

type googleConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	Model                      string `json:"model,omitempty"`
	UseEnhanced                bool   `json:"useEnhanced,omitempty"`
}

type googleAudio struct {
	Content string `json:"content"` // Base64 encoded
}

type googleResponse struct {
	Results []googleResult `json:"results"`
	Error   *googleError   `json:"error,omitempty"`
}

type googleResult struct {
	Alternatives  []googleAlternative `json:"alternatives"`
	ResultEndTime string              `json:"resultEndTime"`
	LanguageCode  string              `json:"languageCode"`
}

type googleAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Transcribe sends the asset inline to speech:recognize. Each result becomes
// one segment; its end offset comes from resultEndTime.
func (p *GoogleProvider) Transcribe(ctx context.Context, asset *model.RawMediaAsset) (*Result, error) {
	startTime := time.Now()
	encoding, sampleRate := googleAudioConfig(asset.MimeType)

	reqJSON, err := json.Marshal(googleRequest{
		Config: googleConfig{
			Encoding:                   encoding,
			SampleRateHertz:            sampleRate,
			LanguageCode:               p.languageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "latest_long",
			UseEnhanced:                true,
		},
		Audio: googleAudio{Content: base64.StdEncoding.EncodeToString(asset.Data)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var apiURL string
	if p.useAPIKey {
		apiURL = fmt.Sprintf("%s/v1/speech:recognize?key=%s", p.endpoint, p.apiKey)
	} else {
		apiURL = fmt.Sprintf("%s/v1/projects/%s:recognize", p.endpoint, p.projectID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: p.Name(), Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.WithField("preview", truncate(string(body), 500)).Debug("google STT response")

	var sttResp googleResponse
	if resp.StatusCode != http.StatusOK {
		msg := truncate(string(body), 500)
		// Errors arrive as {"error": {...}}.
		if json.Unmarshal(body, &sttResp) == nil && sttResp.Error != nil {
			msg = sttResp.Error.Message
		}
		log.WithField("status", resp.StatusCode).WithField("message", msg).Warn("google STT API error")
		return nil, &UpstreamError{Provider: p.Name(), Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(body, &sttResp); err != nil {
		return nil, &UpstreamError{Provider: p.Name(), Status: resp.StatusCode, Message: "unparsable response", Err: err}
	}
	if sttResp.Error != nil {
		return nil, &UpstreamError{Provider: p.Name(), Status: sttResp.Error.Code, Message: sttResp.Error.Message}
	}

	var (
		texts      []string
		segments   []model.TranscriptSegment
		confidence float64
		language   string
		prevEnd    float64
	)
	for _, r := range sttResp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		end := parseGoogleDuration(r.ResultEndTime)
		if end < prevEnd {
			end = prevEnd
		}
		if text != "" {
			texts = append(texts, text)
			segments = append(segments, model.TranscriptSegment{Start: prevEnd, End: end, Text: text})
			confidence += alt.Confidence
		}
		if language == "" {
			language = r.LanguageCode
		}
		prevEnd = end
	}
	if len(texts) == 0 {
		return nil, ErrNoSpeech
	}
	if language == "" {
		language = p.languageCode
	}
	confidence /= float64(len(segments))

	log.WithField("chars", len(strings.Join(texts, " "))).
		WithField("confidence", confidence).
		WithField(logging.KeyDurationMs, time.Since(startTime).Milliseconds()).
		Info("transcription successful")

	return &Result{
		Transcript: model.Transcript{
			Text:     strings.Join(texts, " "),
			Duration: prevEnd,
			Language: language,
			Segments: segments,
		},
		Confidence:  confidence,
		Provider:    p.Name(),
		RawResponse: string(body),
	}, nil
}

// googleAudioConfig determines encoding and sample rate from the mime type.
// A zero sample rate lets the service read it from the container header.
func googleAudioConfig(mimeType string) (string, int) {
	switch MediaType(mimeType) {
	case "audio/webm", "video/webm":
		return "WEBM_OPUS", 48000
	case "audio/ogg", "audio/opus":
		return "OGG_OPUS", 48000
	case "audio/mpeg", "audio/mp3":
		return "MP3", 44100
	case "audio/flac", "audio/x-flac":
		return "FLAC", 0
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "LINEAR16", 0
	default:
		return "ENCODING_UNSPECIFIED", 0
	}
}

// parseGoogleDuration reads protobuf duration strings such as "12.340s".
func parseGoogleDuration(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "s")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
