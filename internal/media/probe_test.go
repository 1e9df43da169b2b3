package media

import (
	"errors"
	"testing"
)

func TestParseProbeOutput(t *testing.T) {
	output := []byte(`{
		"streams": [
			{"codec_name": "aac", "sample_rate": "44100", "channels": 2}
		]
	}`)

	stream, err := parseProbeOutput(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if stream.Codec != "aac" {
		t.Fatalf("codec = %q, want aac", stream.Codec)
	}
	if stream.SampleRate != 44100 {
		t.Fatalf("sample rate = %d, want 44100", stream.SampleRate)
	}
	if stream.Channels != 2 {
		t.Fatalf("channels = %d, want 2", stream.Channels)
	}
}

func TestParseProbeOutputNoStreams(t *testing.T) {
	_, err := parseProbeOutput([]byte(`{"streams": []}`))
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
}

func TestParseProbeOutputBadSampleRate(t *testing.T) {
	output := []byte(`{"streams": [{"codec_name": "aac", "sample_rate": "", "channels": 2}]}`)
	if _, err := parseProbeOutput(output); err == nil {
		t.Fatal("expected error for missing sample rate")
	}
}

func TestParseProbeOutputMalformedJSON(t *testing.T) {
	if _, err := parseProbeOutput([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed output")
	}
}
