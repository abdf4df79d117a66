package synthesis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mimic/internal/services"
	"mimic/internal/synthesis"
	"mimic/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *synthesis.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	return synthesis.NewClient(cfg, synthesis.WithBaseURL(server.URL))
}

func TestSubmitCreatesTalk(t *testing.T) {
	var captured struct {
		Script struct {
			Type     string `json:"type"`
			AudioURL string `json:"audio_url"`
		} `json:"script"`
		SourceURL string `json:"source_url"`
		Config    struct {
			Fluent   bool    `json:"fluent"`
			PadAudio float64 `json:"pad_audio"`
			Stitch   bool    `json:"stitch"`
		} `json:"config"`
	}
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/talks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Basic test" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tlk-1","status":"created"}`))
	}))

	job, err := client.Submit(context.Background(), synthesis.SubmitRequest{
		AudioURL: "https://cdn/audio.mp3",
		ImageURL: "https://cdn/face.png",
		Fluent:   true,
		PadAudio: 0.3,
		Stitch:   false,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.ID != "tlk-1" || job.Status != synthesis.JobCreated {
		t.Fatalf("unexpected job: %#v", job)
	}
	if captured.Script.Type != "audio" || captured.Script.AudioURL != "https://cdn/audio.mp3" {
		t.Fatalf("unexpected script payload: %#v", captured.Script)
	}
	if captured.SourceURL != "https://cdn/face.png" {
		t.Fatalf("unexpected source url: %q", captured.SourceURL)
	}
	// The request's rendering options must land in the config verbatim.
	if !captured.Config.Fluent || captured.Config.Stitch {
		t.Fatalf("unexpected config flags: %#v", captured.Config)
	}
	if captured.Config.PadAudio != 0.3 {
		t.Fatalf("unexpected pad_audio: %v", captured.Config.PadAudio)
	}
}

func TestSubmitWithoutKeyIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSynthesisKey(""))
	client := synthesis.NewClient(cfg)

	if client.Configured() {
		t.Fatal("expected client to report unconfigured")
	}
	_, err := client.Submit(context.Background(), synthesis.SubmitRequest{
		AudioURL: "https://cdn/a.mp3",
		ImageURL: "https://cdn/i.png",
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStatusReportsTerminalResult(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/talks/tlk-9" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
            "id": "tlk-9",
            "status": "done",
            "result_url": "https://provider/result.mp4",
            "duration": 7.25,
            "metadata": {"thumbnail_url": "https://provider/thumb.png"}
        }`))
	}))

	job, err := client.Status(context.Background(), "tlk-9")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != synthesis.JobDone || !job.Status.Terminal() {
		t.Fatalf("expected terminal done status, got %#v", job)
	}
	if job.ResultURL != "https://provider/result.mp4" {
		t.Fatalf("unexpected result url: %q", job.ResultURL)
	}
	if job.ThumbnailURL != "https://provider/thumb.png" {
		t.Fatalf("unexpected thumbnail: %q", job.ThumbnailURL)
	}
	if job.Duration != 7.25 {
		t.Fatalf("unexpected duration: %v", job.Duration)
	}
}

func TestStatusSurfacesProviderError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"tlk-2","status":"error","error":{"description":"face not detected"}}`))
	}))

	job, err := client.Status(context.Background(), "tlk-2")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != synthesis.JobError {
		t.Fatalf("expected error status, got %s", job.Status)
	}
	if job.ErrorDetail != "face not detected" {
		t.Fatalf("unexpected error detail: %q", job.ErrorDetail)
	}
}

func TestStatusNotFound(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"unknown talk"}`))
	}))

	_, err := client.Status(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestErrorClassificationByStatusCode(t *testing.T) {
	cases := []struct {
		name   string
		status int
		marker error
	}{
		{"bad request is permanent", http.StatusBadRequest, services.ErrPermanent},
		{"unauthorized is configuration", http.StatusUnauthorized, services.ErrConfiguration},
		{"rate limit is transient", http.StatusTooManyRequests, services.ErrTransient},
		{"server error is transient", http.StatusInternalServerError, services.ErrTransient},
		{"bad gateway is transient", http.StatusBadGateway, services.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			_, err := client.Status(context.Background(), "tlk-x")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
			}
		})
	}
}

func TestDeleteTalk(t *testing.T) {
	var deleted bool
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/talks/tlk-3" {
			deleted = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.Delete(context.Background(), "tlk-3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete request to reach provider")
	}
}

func TestCredits(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/credits" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"remaining":12.5,"total":100}`))
	}))

	credits, err := client.Credits(context.Background())
	if err != nil {
		t.Fatalf("Credits failed: %v", err)
	}
	if credits.Remaining != 12.5 || credits.Total != 100 {
		t.Fatalf("unexpected credits: %#v", credits)
	}
}

func TestCancellationPassesThrough(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Status(ctx, "tlk-5")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
