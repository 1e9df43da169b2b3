/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"bufio"
	"fmt"
	"io"
)

// samplesPerAACFrame is the number of PCM samples carried by one AAC raw
// data block.
const samplesPerAACFrame = 1024

// adtsSampleRates maps the 4-bit sampling_frequency_index to Hz. Indexes
// 13-15 are reserved.
var adtsSampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// adtsFrame is one ADTS frame, header included, as it appears on the wire.
type adtsFrame struct {
	data          []byte
	sampleRate    int
	channels      int
	rawDataBlocks int
}

// adtsParser reads ADTS frames from a byte stream, resynchronizing on the
// 12-bit syncword if garbage appears between frames.
type adtsParser struct {
	br *bufio.Reader
}

func newADTSParser(r io.Reader) *adtsParser {
	return &adtsParser{br: bufio.NewReaderSize(r, 32*1024)}
}

// Next returns the next complete frame, or io.EOF once the stream ends.
func (p *adtsParser) Next() (*adtsFrame, error) {
	if err := p.sync(); err != nil {
		return nil, err
	}

	header, err := p.br.Peek(7)
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	sfi := (header[2] >> 2) & 0x0F
	sampleRate := adtsSampleRates[sfi]
	if sampleRate == 0 {
		// Reserved frequency index; treat the syncword as a false positive.
		if _, err := p.br.Discard(1); err != nil {
			return nil, err
		}
		return p.Next()
	}

	channels := int((header[2]&0x01)<<2 | header[3]>>6)
	frameLen := int(header[3]&0x03)<<11 | int(header[4])<<3 | int(header[5])>>5
	if frameLen < 7 {
		return nil, fmt.Errorf("adts: invalid frame length %d", frameLen)
	}
	blocks := int(header[6]&0x03) + 1

	data := make([]byte, frameLen)
	if _, err := io.ReadFull(p.br, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return &adtsFrame{
		data:          data,
		sampleRate:    sampleRate,
		channels:      channels,
		rawDataBlocks: blocks,
	}, nil
}

// sync advances the reader to the next ADTS syncword.
func (p *adtsParser) sync() error {
	for {
		b, err := p.br.Peek(2)
		if err != nil {
			if err == io.EOF && len(b) > 0 {
				// A trailing lone byte can never start a frame.
				return io.EOF
			}
			return err
		}
		if b[0] == 0xFF && b[1]&0xF6 == 0xF0 {
			return nil
		}
		if _, err := p.br.Discard(1); err != nil {
			return err
		}
	}
}
