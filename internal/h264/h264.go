// Package h264 assembles decodable Annex-B streams from H.264 samples.
//
// Samples stored in MP4 files use AVCC framing (each NAL unit prefixed by
// its 4-byte length) and carry no parameter sets, which live in the avcC
// box instead. A raw decoder wants Annex-B framing with SPS and PPS ahead
// of the first slice, so AnnexBStream reframes the samples and injects the
// parameter sets. SEI units are dropped on the way.
package h264

import (
	"bytes"
	"errors"
	"fmt"

	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// ErrNoSPS is returned when a picture size is needed but no SPS is known.
var ErrNoSPS = errors.New("h264: no sequence parameter set")

// Framing is how the NAL units of an access unit are delimited.
type Framing int

const (
	// FramingUnknown makes the framing be guessed from the data.
	FramingUnknown Framing = iota
	// FramingAVCC prefixes each unit with its 4-byte big-endian length.
	FramingAVCC
	// FramingAnnexB separates units with 00 00 01 start codes.
	FramingAnnexB
)

func (f Framing) String() string {
	switch f {
	case FramingAVCC:
		return "avcc"
	case FramingAnnexB:
		return "annexb"
	}
	return "unknown"
}

// Sample is one encoded access unit.
type Sample struct {
	// Data is the access unit in the framing named by Framing.
	Data []byte

	Framing Framing

	// DTS is the decode timestamp in track timescale units. Decoding only
	// relies on the order of samples, never on DTS.
	DTS int64
}

// ParameterSets holds the SPS and PPS NAL units of a stream, without any
// framing.
type ParameterSets struct {
	SPS [][]byte
	PPS [][]byte
}

func (p ParameterSets) empty() bool {
	return len(p.SPS) == 0 && len(p.PPS) == 0
}

// Dimensions returns the picture size described by the first SPS.
func (p ParameterSets) Dimensions() (int, int, error) {
	if len(p.SPS) == 0 {
		return 0, 0, ErrNoSPS
	}
	return Dimensions(p.SPS[0])
}

func naluType(nalu []byte) mch264.NALUType {
	return mch264.NALUType(nalu[0] & 0x1f)
}

// NALUnits splits an access unit of unknown framing into NAL units.
// Data that opens with a start code is parsed as Annex-B first; anything
// else, or Annex-B that does not split into valid units, is parsed as AVCC.
// A 4-byte AVCC length of 0x0000_01NN looks like a start code, so callers
// that know the framing should use SplitNALUnits.
func NALUnits(data []byte) ([][]byte, error) {
	return SplitNALUnits(data, FramingUnknown)
}

var (
	startCode3 = []byte{0, 0, 1}
	startCode4 = []byte{0, 0, 0, 1}
)

func hasStartCode(data []byte) bool {
	return bytes.HasPrefix(data, startCode3) || bytes.HasPrefix(data, startCode4)
}

// SplitNALUnits splits an access unit framed as framing into NAL units.
func SplitNALUnits(data []byte, framing Framing) ([][]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("h264: empty access unit")
	}

	switch framing {
	case FramingAVCC:
		return splitAVCC(data)
	case FramingAnnexB:
		return splitAnnexB(data)
	}

	if hasStartCode(data) {
		if nalus, err := splitAnnexB(data); err == nil {
			return nalus, nil
		}
	}
	if nalus, err := splitAVCC(data); err == nil {
		return nalus, nil
	}
	return splitAnnexB(data)
}

func splitAVCC(data []byte) ([][]byte, error) {
	var avcc mch264.AVCC
	if err := avcc.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to split access unit: %w", err)
	}
	if !validNALUs(avcc) {
		return nil, errors.New("h264: malformed NAL unit header")
	}
	return avcc, nil
}

func splitAnnexB(data []byte) ([][]byte, error) {
	var annexb mch264.AnnexB
	if err := annexb.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to split access unit: %w", err)
	}
	if !validNALUs(annexb) {
		return nil, errors.New("h264: malformed NAL unit header")
	}
	return annexb, nil
}

// validNALUs rejects empty units, a set forbidden_zero_bit and the
// unspecified type 0, which catch data split with the wrong framing.
func validNALUs(nalus [][]byte) bool {
	if len(nalus) == 0 {
		return false
	}
	for _, n := range nalus {
		if len(n) == 0 || n[0]&0x80 != 0 || naluType(n) == 0 {
			return false
		}
	}
	return true
}

// Dimensions parses an SPS NAL unit and returns the cropped picture size.
func Dimensions(sps []byte) (int, int, error) {
	var s mch264.SPS
	if err := s.Unmarshal(sps); err != nil {
		return 0, 0, fmt.Errorf("failed to parse SPS: %w", err)
	}
	return s.Width(), s.Height(), nil
}

// HasIDR reports whether the sample contains an IDR slice. Samples that
// cannot be parsed report false.
func HasIDR(s Sample) bool {
	nalus, err := SplitNALUnits(s.Data, s.Framing)
	if err != nil {
		return false
	}
	for _, n := range nalus {
		if naluType(n) == mch264.NALUTypeIDR {
			return true
		}
	}
	return false
}

// FindParameterSets collects the in-band SPS and PPS units of samples.
func FindParameterSets(samples []Sample) ParameterSets {
	var params ParameterSets
	for _, s := range samples {
		nalus, err := SplitNALUnits(s.Data, s.Framing)
		if err != nil {
			continue
		}
		for _, n := range nalus {
			switch naluType(n) {
			case mch264.NALUTypeSPS:
				params.SPS = append(params.SPS, n)
			case mch264.NALUTypePPS:
				params.PPS = append(params.PPS, n)
			}
		}
	}
	return params
}

// AnnexBStream converts samples into one Annex-B elementary stream. SEI
// units are dropped. params are placed ahead of the first sample unless
// that sample carries its own SPS.
func AnnexBStream(samples []Sample, params ParameterSets) ([]byte, error) {
	var out []byte
	for i, s := range samples {
		nalus, err := SplitNALUnits(s.Data, s.Framing)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		kept := make(mch264.AnnexB, 0, len(nalus)+len(params.SPS)+len(params.PPS))
		if i == 0 && !params.empty() && !containsType(nalus, mch264.NALUTypeSPS) {
			kept = append(kept, params.SPS...)
			kept = append(kept, params.PPS...)
		}
		for _, n := range nalus {
			if naluType(n) == mch264.NALUTypeSEI {
				continue
			}
			kept = append(kept, n)
		}
		if len(kept) == 0 {
			continue
		}

		buf, err := kept.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to frame sample %d: %w", i, err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

func containsType(nalus [][]byte, typ mch264.NALUType) bool {
	for _, n := range nalus {
		if naluType(n) == typ {
			return true
		}
	}
	return false
}
