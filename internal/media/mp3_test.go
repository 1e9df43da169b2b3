package media

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// buildMP3Frame crafts a valid MPEG1 Layer III frame: 128kbps, 44.1kHz,
// stereo, no padding. Frame size is 1152/8*128000/44100 = 417 bytes.
func buildMP3Frame() []byte {
	frame := make([]byte, 417)
	frame[0] = 0xFF
	frame[1] = 0xFB // MPEG1, Layer III, no CRC
	frame[2] = 0x90 // bitrate index 9 (128k), sample rate index 0 (44100)
	frame[3] = 0x00 // stereo
	return frame
}

func buildID3v2Tag(payloadLen int) []byte {
	tag := make([]byte, id3v2HeaderSize+payloadLen)
	copy(tag, "ID3")
	tag[3] = 4 // v2.4
	// sync-safe payload size
	tag[6] = byte((payloadLen >> 21) & 0x7F)
	tag[7] = byte((payloadLen >> 14) & 0x7F)
	tag[8] = byte((payloadLen >> 7) & 0x7F)
	tag[9] = byte(payloadLen & 0x7F)
	return tag
}

func writeMP3(t *testing.T, parts ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp3")
	var data []byte
	for _, p := range parts {
		data = append(data, p...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write mp3: %v", err)
	}
	return path
}

func TestOpenMP3ReadsFramesWithTimestamps(t *testing.T) {
	path := writeMP3(t, buildMP3Frame(), buildMP3Frame(), buildMP3Frame())

	track, err := openMP3(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer track.Close()

	info := track.Info()
	if info.SampleRate != 44100 {
		t.Fatalf("sample rate = %d, want 44100", info.SampleRate)
	}
	if info.ContentType != "audio/mpeg" {
		t.Fatalf("content type = %q", info.ContentType)
	}
	if info.TimeBase != (Rational{Num: 1, Den: 44100}) {
		t.Fatalf("time base = %v", info.TimeBase)
	}

	wantPTS := []int64{0, 1152, 2304}
	for i, want := range wantPTS {
		pkt, err := track.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.PTS != want {
			t.Fatalf("packet %d pts = %d, want %d", i, pkt.PTS, want)
		}
		if pkt.Duration != 1152 {
			t.Fatalf("packet %d duration = %d, want 1152", i, pkt.Duration)
		}
		if len(pkt.Data) != 417 {
			t.Fatalf("packet %d size = %d, want 417", i, len(pkt.Data))
		}
	}
	if _, err := track.ReadPacket(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestOpenMP3SkipsID3v2Tag(t *testing.T) {
	path := writeMP3(t, buildID3v2Tag(300), buildMP3Frame(), buildMP3Frame())

	track, err := openMP3(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer track.Close()

	pkt, err := track.ReadPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pkt.PTS != 0 {
		t.Fatalf("first pts = %d, want 0", pkt.PTS)
	}
}

func TestOpenMP3IgnoresTrailingID3v1Tag(t *testing.T) {
	id3v1 := make([]byte, id3v1TagSize)
	copy(id3v1, "TAG")
	path := writeMP3(t, buildMP3Frame(), id3v1)

	track, err := openMP3(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer track.Close()

	if _, err := track.ReadPacket(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := track.ReadPacket(); err != io.EOF {
		t.Fatalf("expected EOF after trailing tag, got %v", err)
	}
}

func TestOpenMP3WithoutFramesReportsNoAudioTrack(t *testing.T) {
	path := writeMP3(t, []byte("this is not audio at all"))

	_, err := openMP3(path)
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
}

func TestParseMP3HeaderRejectsNonsense(t *testing.T) {
	cases := [][]byte{
		{0x00, 0x00, 0x00, 0x00},
		{0xFF, 0xFB, 0xF0, 0x00}, // reserved bitrate index
		{0xFF, 0xFB, 0x9C, 0x00}, // reserved sample rate index
		{0xFF, 0xF9, 0x90, 0x00}, // reserved layer
		{0xFF, 0xEB, 0x90, 0x00}, // reserved version
	}
	for _, c := range cases {
		if _, ok := parseMP3Header(c); ok {
			t.Fatalf("header %x accepted", c)
		}
	}
}
