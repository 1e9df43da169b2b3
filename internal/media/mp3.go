/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// mp3Track reads MPEG audio (Layer III) frames straight from the file,
// synthesizing per-frame timestamps in a 1/sample-rate time-base. No
// subprocess is involved.
type mp3Track struct {
	f    *os.File
	br   *bufio.Reader
	info TrackInfo
	pts  int64 // next PTS, in samples
}

const (
	id3v2HeaderSize = 10
	id3v1TagSize    = 128
)

// Bitrates in kbps, indexed by the 4-bit bitrate index. Index 0 (free form)
// and 15 (reserved) are unsupported.
var (
	mp3BitratesV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mp3BitratesV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
	mp3SampleRates  = [4]int{44100, 48000, 32000, 0} // MPEG1 base rates
)

func openMP3(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	t := &mp3Track{f: f, br: bufio.NewReaderSize(f, 32*1024)}
	if err := t.skipID3v2(); err != nil {
		f.Close()
		return nil, fmt.Errorf("mp3 %s: %w", path, err)
	}

	// Stream parameters come from the first frame header, which is only
	// peeked so it is still delivered as packet zero.
	hdr, err := t.peekFrameHeader()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("mp3 %s: %w", path, ErrNoAudioTrack)
		}
		return nil, fmt.Errorf("mp3 %s: %w", path, err)
	}

	t.info = TrackInfo{
		Path:        path,
		Codec:       "mp3",
		ContentType: "audio/mpeg",
		SampleRate:  hdr.sampleRate,
		Channels:    hdr.channels,
		TimeBase:    Rational{Num: 1, Den: int64(hdr.sampleRate)},
	}
	return t, nil
}

func (t *mp3Track) Info() TrackInfo { return t.info }

func (t *mp3Track) ReadPacket() (*Packet, error) {
	hdr, err := t.peekFrameHeader()
	if err != nil {
		return nil, err
	}

	data := make([]byte, hdr.frameSize)
	if _, err := io.ReadFull(t.br, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	pkt := &Packet{
		PTS:      t.pts,
		DTS:      t.pts,
		Duration: int64(hdr.samplesPerFrame),
		TimeBase: t.info.TimeBase,
		Data:     data,
	}
	t.pts += int64(hdr.samplesPerFrame)
	return pkt, nil
}

func (t *mp3Track) Close() error { return t.f.Close() }

type mp3FrameHeader struct {
	frameSize       int
	samplesPerFrame int
	sampleRate      int
	channels        int
}

// peekFrameHeader scans forward to the next valid Layer III frame header
// without consuming it. Returns io.EOF when no further frame exists (which
// also absorbs any trailing ID3v1 tag).
func (t *mp3Track) peekFrameHeader() (*mp3FrameHeader, error) {
	for {
		b, err := t.br.Peek(4)
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		hdr, ok := parseMP3Header(b)
		if !ok {
			if _, err := t.br.Discard(1); err != nil {
				return nil, err
			}
			continue
		}
		return hdr, nil
	}
}

// parseMP3Header validates 4 header bytes and derives frame geometry.
func parseMP3Header(b []byte) (*mp3FrameHeader, bool) {
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return nil, false
	}

	version := (b[1] >> 3) & 0x03 // 0=2.5, 2=2, 3=1, 1=reserved
	layer := (b[1] >> 1) & 0x03   // 1=III
	if version == 1 || layer != 1 {
		return nil, false
	}

	bitrateIdx := b[2] >> 4
	sampleRateIdx := (b[2] >> 2) & 0x03
	if sampleRateIdx == 3 {
		return nil, false
	}

	var bitrate, sampleRate, spf int
	switch version {
	case 3: // MPEG1
		bitrate = mp3BitratesV1L3[bitrateIdx]
		sampleRate = mp3SampleRates[sampleRateIdx]
		spf = 1152
	case 2: // MPEG2
		bitrate = mp3BitratesV2L3[bitrateIdx]
		sampleRate = mp3SampleRates[sampleRateIdx] / 2
		spf = 576
	case 0: // MPEG2.5
		bitrate = mp3BitratesV2L3[bitrateIdx]
		sampleRate = mp3SampleRates[sampleRateIdx] / 4
		spf = 576
	}
	if bitrate == 0 || sampleRate == 0 {
		return nil, false
	}

	padding := int((b[2] >> 1) & 0x01)
	frameSize := spf/8*bitrate*1000/sampleRate + padding
	if frameSize < 4 {
		return nil, false
	}

	channels := 2
	if (b[3]>>6)&0x03 == 3 { // mono channel mode
		channels = 1
	}

	return &mp3FrameHeader{
		frameSize:       frameSize,
		samplesPerFrame: spf,
		sampleRate:      sampleRate,
		channels:        channels,
	}, true
}

// skipID3v2 consumes a leading ID3v2 tag if present.
func (t *mp3Track) skipID3v2() error {
	b, err := t.br.Peek(id3v2HeaderSize)
	if err != nil {
		// Short files simply have no tag to skip.
		if err == io.EOF {
			return nil
		}
		return err
	}
	if b[0] != 'I' || b[1] != 'D' || b[2] != '3' {
		return nil
	}

	// Tag size is a 28-bit sync-safe integer.
	size := int(b[6]&0x7F)<<21 | int(b[7]&0x7F)<<14 | int(b[8]&0x7F)<<7 | int(b[9]&0x7F)
	if b[5]&0x10 != 0 {
		size += id3v2HeaderSize // footer present
	}

	if _, err := t.br.Discard(id3v2HeaderSize + size); err != nil && err != io.EOF {
		return err
	}
	return nil
}
