package telephony

import (
	"errors"
	"testing"
	"time"

	"crm-telephony/internal/calls"
)

func TestParseStatusEvent(t *testing.T) {
	body := []byte(`{"providerCallId":"PC1","status":"completed","timestamp":"2023-11-14T10:02:30Z","durationSeconds":42}`)

	ev, err := ParseStatusEvent(body)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.ProviderCallID != "PC1" {
		t.Fatalf("expected provider call id, got %q", ev.ProviderCallID)
	}
	if ev.Status != calls.EventCompleted {
		t.Fatalf("expected completed, got %q", ev.Status)
	}
	want := time.Date(2023, 11, 14, 10, 2, 30, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ev.Timestamp)
	}
	if ev.DurationSeconds == nil || *ev.DurationSeconds != 42 {
		t.Fatalf("expected duration 42, got %v", ev.DurationSeconds)
	}
}

func TestParseStatusEvent_DurationIsOptional(t *testing.T) {
	ev, err := ParseStatusEvent([]byte(`{"providerCallId":"PC1","status":"ringing","timestamp":"2023-11-14T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.DurationSeconds != nil {
		t.Fatalf("expected nil duration, got %v", *ev.DurationSeconds)
	}
}

func TestParseStatusEvent_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"providerCallId":`,
		"missing call id":   `{"status":"ringing","timestamp":"2023-11-14T10:00:00Z"}`,
		"unknown status":    `{"providerCallId":"PC1","status":"levitating","timestamp":"2023-11-14T10:00:00Z"}`,
		"missing timestamp": `{"providerCallId":"PC1","status":"ringing"}`,
		"bad timestamp":     `{"providerCallId":"PC1","status":"ringing","timestamp":"yesterday"}`,
		"negative duration": `{"providerCallId":"PC1","status":"completed","timestamp":"2023-11-14T10:00:00Z","durationSeconds":-5}`,
	}
	for name, body := range cases {
		if _, err := ParseStatusEvent([]byte(body)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("%s: expected ErrMalformedEvent, got %v", name, err)
		}
	}
}

func TestParseRecordingEvent(t *testing.T) {
	body := []byte(`{"providerConversationId":"CONV1","recordingUrl":"https://cdn.example.com/rec/1.mp3","startTime":"2023-11-14T10:00:00Z","endTime":"2023-11-14T10:02:30Z"}`)

	ev, err := ParseRecordingEvent(body)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.ProviderConversationID != "CONV1" {
		t.Fatalf("expected conversation id, got %q", ev.ProviderConversationID)
	}
	if ev.URL == "" {
		t.Fatalf("expected recording url")
	}
	if got := ev.EndTime.Sub(ev.StartTime); got != 150*time.Second {
		t.Fatalf("expected 150s window, got %v", got)
	}
}

func TestParseRecordingEvent_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing conversation": `{"recordingUrl":"https://x","startTime":"2023-11-14T10:00:00Z","endTime":"2023-11-14T10:01:00Z"}`,
		"missing url":          `{"providerConversationId":"CONV1","startTime":"2023-11-14T10:00:00Z","endTime":"2023-11-14T10:01:00Z"}`,
		"missing start":        `{"providerConversationId":"CONV1","recordingUrl":"https://x","endTime":"2023-11-14T10:01:00Z"}`,
		"end before start":     `{"providerConversationId":"CONV1","recordingUrl":"https://x","startTime":"2023-11-14T10:01:00Z","endTime":"2023-11-14T10:00:00Z"}`,
	}
	for name, body := range cases {
		if _, err := ParseRecordingEvent([]byte(body)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("%s: expected ErrMalformedEvent, got %v", name, err)
		}
	}
}
