package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

func TestTranscribeEmptySegmentShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p := NewGroqWithClient("gsk_test", srv.URL, srv.Client())
	_, err := p.Transcribe(context.Background(), types.AudioSegment{}, TranscribeOptions{})

	var ce *core.Error
	if !errors.As(err, &ce) || ce.Code != core.CodeNoAudioCaptured {
		t.Fatalf("error = %v, want no_audio_captured", err)
	}
	if calls.Load() != 0 {
		t.Fatal("empty segment reached the network")
	}
}

func TestTranscribeMultipartUpload(t *testing.T) {
	var gotModel, gotLanguage, gotFilename, gotAuth string
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		gotFilename = header.Filename
		gotAudio, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " I want two tacos. ", "language": "en", "duration": 2.4}`))
	}))
	defer srv.Close()

	p := NewGroqWithClient("gsk_test", srv.URL, srv.Client())
	segment := types.AudioSegment{Data: []byte("webm-bytes"), MIMEType: "audio/webm"}
	tr, err := p.Transcribe(context.Background(), segment, TranscribeOptions{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Bearer gsk_test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != DefaultWhisperModel {
		t.Errorf("model = %q, want default whisper model", gotModel)
	}
	if gotLanguage != "en" {
		t.Errorf("language = %q", gotLanguage)
	}
	if gotFilename != "audio.webm" {
		t.Errorf("filename = %q", gotFilename)
	}
	if string(gotAudio) != "webm-bytes" {
		t.Errorf("uploaded audio = %q", gotAudio)
	}
	if tr.Text != "I want two tacos." {
		t.Errorf("text = %q, want trimmed transcript", tr.Text)
	}
	if tr.Language != "en" || tr.Duration != 2.4 {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestTranscribeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"file too large"}}`, http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	p := NewGroqWithClient("gsk_test", srv.URL, srv.Client())
	_, err := p.Transcribe(context.Background(), types.AudioSegment{Data: []byte("x"), MIMEType: "audio/webm"}, TranscribeOptions{})

	var ce *core.Error
	if !errors.As(err, &ce) || ce.Code != core.CodeTranscriptionFailed {
		t.Fatalf("error = %v, want transcription_failed", err)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"audio/webm":             "webm",
		"audio/webm;codecs=opus": "webm",
		"audio/wav":              "wav",
		"audio/mpeg":             "mp3",
		"audio/ogg":              "ogg",
		"audio/flac":             "flac",
		"audio/mp4":              "m4a",
		"application/json":       "webm",
		"":                       "webm",
	}
	for mime, want := range cases {
		if got := extensionFor(mime); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", mime, got, want)
		}
	}
}
