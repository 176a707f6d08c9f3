// Package mp4 locates H.264 video samples inside MP4 files.
//
// Only the moov box is parsed. Sample data is read on demand through an
// io.ReaderAt, so a preview of a remote file downloads the index and the
// few samples it needs rather than the whole file.
package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	gomp4 "github.com/abema/go-mp4"

	"github.com/glizzus/framegrab/internal/h264"
)

// ErrNoVideoTrack is returned when a file has no AVC video track.
var ErrNoVideoTrack = errors.New("mp4: no AVC video track")

// ErrSampleOutOfBounds is returned when the sample table points past the
// end of the file.
var ErrSampleOutOfBounds = errors.New("mp4: sample extends past end of file")

// Sample locates one access unit in the file.
type Sample struct {
	Offset int64
	Size   uint32
	// DTS is the decode time in track timescale units.
	DTS   int64
	Delta uint32
	Sync  bool
}

// VideoTrack is the sample index of an AVC track.
type VideoTrack struct {
	ID        uint32
	Timescale uint32
	Width     int
	Height    int

	// LengthSize is the byte width of the NAL unit length prefixes.
	LengthSize int
	Params     h264.ParameterSets
	Samples    []Sample

	// FileSize is the length of the file the track was read from. When
	// set, ReadSamples rejects samples that extend past it.
	FileSize int64
}

// Duration is the decode time of the last sample plus its delta.
func (t *VideoTrack) Duration() time.Duration {
	if len(t.Samples) == 0 || t.Timescale == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return t.ticksToDuration(last.DTS + int64(last.Delta))
}

func (t *VideoTrack) ticksToDuration(ticks int64) time.Duration {
	return time.Duration(float64(ticks) / float64(t.Timescale) * float64(time.Second))
}

// SampleTime returns the decode time of sample i.
func (t *VideoTrack) SampleTime(i int) time.Duration {
	if t.Timescale == 0 {
		return 0
	}
	return t.ticksToDuration(t.Samples[i].DTS)
}

// SampleAt returns the index of the last sample whose decode time is at or
// before seconds, clamped to the track.
func (t *VideoTrack) SampleAt(seconds float64) int {
	if len(t.Samples) == 0 {
		return -1
	}
	target := int64(seconds * float64(t.Timescale))
	i := sort.Search(len(t.Samples), func(i int) bool {
		return t.Samples[i].DTS > target
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// KeyframeAt returns the index of the last sync sample at or before
// SampleAt(seconds). The first sample is returned if none precedes it.
func (t *VideoTrack) KeyframeAt(seconds float64) int {
	i := t.SampleAt(seconds)
	for i > 0 && !t.Samples[i].Sync {
		i--
	}
	return i
}

// ReadSamples reads samples from through to, inclusive. The data is
// returned in 4-byte AVCC framing regardless of the track's length size.
// Sample sizes come from the file, so they are checked against FileSize
// before anything is allocated.
func (t *VideoTrack) ReadSamples(r io.ReaderAt, from, to int) ([]h264.Sample, error) {
	if from < 0 || to >= len(t.Samples) || from > to {
		return nil, fmt.Errorf("sample range [%d, %d] outside track of %d samples", from, to, len(t.Samples))
	}

	out := make([]h264.Sample, 0, to-from+1)
	for i := from; i <= to; i++ {
		s := t.Samples[i]
		if s.Offset < 0 || (t.FileSize > 0 && s.Offset+int64(s.Size) > t.FileSize) {
			return nil, fmt.Errorf("sample %d at offset %d with size %d: %w", i, s.Offset, s.Size, ErrSampleOutOfBounds)
		}
		data := make([]byte, s.Size)
		if _, err := r.ReadAt(data, s.Offset); err != nil {
			return nil, fmt.Errorf("failed to read sample %d at offset %d: %w", i, s.Offset, err)
		}
		if t.LengthSize != 4 {
			var err error
			if data, err = widenLengths(data, t.LengthSize); err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
		}
		out = append(out, h264.Sample{Data: data, Framing: h264.FramingAVCC, DTS: s.DTS})
	}
	return out, nil
}

// widenLengths rewrites 1 or 2 byte NAL unit length prefixes as 4 bytes.
func widenLengths(data []byte, size int) ([]byte, error) {
	if size != 1 && size != 2 {
		return nil, fmt.Errorf("unsupported NAL length size %d", size)
	}
	out := make([]byte, 0, len(data)+len(data)/4)
	for len(data) > 0 {
		if len(data) < size {
			return nil, errors.New("truncated NAL length")
		}
		var n int
		if size == 1 {
			n = int(data[0])
		} else {
			n = int(binary.BigEndian.Uint16(data))
		}
		data = data[size:]
		if n > len(data) {
			return nil, errors.New("NAL length exceeds sample")
		}
		out = binary.BigEndian.AppendUint32(out, uint32(n))
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out, nil
}

// ReadVideoTrack parses the moov box of r and indexes its first AVC track.
// Fragmented files are not supported.
func ReadVideoTrack(r io.ReadSeeker) (*VideoTrack, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to find mp4 size: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind mp4: %w", err)
	}

	info, err := gomp4.Probe(r)
	if err != nil {
		return nil, fmt.Errorf("failed to probe mp4: %w", err)
	}

	var probed *gomp4.Track
	for _, tr := range info.Tracks {
		if tr.Codec == gomp4.CodecAVC1 && tr.AVC != nil {
			probed = tr
			break
		}
	}
	if probed == nil {
		return nil, ErrNoVideoTrack
	}
	if len(probed.Samples) == 0 {
		return nil, fmt.Errorf("track %d has no samples in moov", probed.TrackID)
	}

	trak, err := findTrak(r, probed.TrackID)
	if err != nil {
		return nil, err
	}

	track := &VideoTrack{
		ID:         probed.TrackID,
		Timescale:  probed.Timescale,
		Width:      int(probed.AVC.Width),
		Height:     int(probed.AVC.Height),
		LengthSize: int(probed.AVC.LengthSize),
		FileSize:   size,
	}
	if track.Params, err = readParameterSets(r, trak); err != nil {
		return nil, err
	}
	if err := track.index(probed); err != nil {
		return nil, err
	}

	sync, err := readSyncSamples(r, trak)
	if err != nil {
		return nil, err
	}
	track.markSync(sync)

	return track, nil
}

// index computes the offset and decode time of every sample.
func (t *VideoTrack) index(probed *gomp4.Track) error {
	t.Samples = make([]Sample, 0, len(probed.Samples))

	var dts int64
	n := 0
	for _, chunk := range probed.Chunks {
		offset := int64(chunk.DataOffset)
		for j := uint32(0); j < chunk.SamplesPerChunk; j++ {
			if n >= len(probed.Samples) {
				return fmt.Errorf("track %d: chunks describe more than %d samples", probed.TrackID, len(probed.Samples))
			}
			s := probed.Samples[n]
			t.Samples = append(t.Samples, Sample{Offset: offset, Size: s.Size, DTS: dts, Delta: s.TimeDelta})
			offset += int64(s.Size)
			dts += int64(s.TimeDelta)
			n++
		}
	}
	if n != len(probed.Samples) {
		return fmt.Errorf("track %d: chunks describe %d of %d samples", probed.TrackID, n, len(probed.Samples))
	}
	return nil
}

// markSync flags the 1-based sample numbers from stss. A nil list means
// every sample is a sync sample.
func (t *VideoTrack) markSync(numbers []uint32) {
	if numbers == nil {
		for i := range t.Samples {
			t.Samples[i].Sync = true
		}
		return
	}
	for _, num := range numbers {
		if i := int(num) - 1; i >= 0 && i < len(t.Samples) {
			t.Samples[i].Sync = true
		}
	}
}

func findTrak(r io.ReadSeeker, trackID uint32) (*gomp4.BoxInfo, error) {
	traks, err := gomp4.ExtractBox(r, nil, gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()})
	if err != nil {
		return nil, fmt.Errorf("failed to find trak boxes: %w", err)
	}
	for _, trak := range traks {
		boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeTkhd()})
		if err != nil {
			return nil, fmt.Errorf("failed to read tkhd: %w", err)
		}
		for _, box := range boxes {
			if tkhd, ok := box.Payload.(*gomp4.Tkhd); ok && tkhd.TrackID == trackID {
				return trak, nil
			}
		}
	}
	return nil, fmt.Errorf("trak for track %d not found", trackID)
}

func readSyncSamples(r io.ReadSeeker, trak *gomp4.BoxInfo) ([]uint32, error) {
	boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{
		gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStss(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read stss: %w", err)
	}
	for _, box := range boxes {
		if stss, ok := box.Payload.(*gomp4.Stss); ok {
			if stss.SampleNumber == nil {
				return []uint32{}, nil
			}
			return stss.SampleNumber, nil
		}
	}
	return nil, nil
}

func readParameterSets(r io.ReadSeeker, trak *gomp4.BoxInfo) (h264.ParameterSets, error) {
	boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{
		gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(),
		gomp4.BoxTypeStsd(), gomp4.BoxTypeAvc1(), gomp4.BoxTypeAvcC(),
	})
	if err != nil {
		return h264.ParameterSets{}, fmt.Errorf("failed to read avcC: %w", err)
	}

	var params h264.ParameterSets
	for _, box := range boxes {
		avcc, ok := box.Payload.(*gomp4.AVCDecoderConfiguration)
		if !ok {
			continue
		}
		for _, ps := range avcc.SequenceParameterSets {
			params.SPS = append(params.SPS, ps.NALUnit)
		}
		for _, ps := range avcc.PictureParameterSets {
			params.PPS = append(params.PPS, ps.NALUnit)
		}
	}
	if len(params.SPS) == 0 {
		return params, fmt.Errorf("avcC has no SPS: %w", h264.ErrNoSPS)
	}
	return params, nil
}
