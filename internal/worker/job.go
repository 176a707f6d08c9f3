package worker

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/glizzus/framegrab/internal/frame"
)

// ExtractionJob asks a worker to extract the frames of a stored video.
type ExtractionJob struct {
	ID           string
	SourceKey    string
	OutputPrefix string
	Format       frame.ImageFormat
	PixelFormat  frame.PixelFormat
	FPS          float64
	MaxFrames    int
	RequestedAt  time.Time
}

// Values encodes the job as Redis stream fields.
func (j ExtractionJob) Values() map[string]any {
	pixelFormat := j.PixelFormat
	if pixelFormat == 0 {
		pixelFormat = frame.RGB24
	}
	return map[string]any{
		"id":           j.ID,
		"sourceKey":    j.SourceKey,
		"outputPrefix": j.OutputPrefix,
		"format":       string(j.Format),
		"pixelFormat":  pixelFormat.String(),
		"fps":          strconv.FormatFloat(j.FPS, 'f', -1, 64),
		"maxFrames":    strconv.Itoa(j.MaxFrames),
		"requestedAt":  j.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func field(values map[string]any, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", key, v)
	}
	return s, nil
}

// ParseExtractionJob decodes stream fields written by Values.
func ParseExtractionJob(values map[string]any) (ExtractionJob, error) {
	var job ExtractionJob
	var errs []error
	get := func(key string) string {
		s, err := field(values, key)
		if err != nil {
			errs = append(errs, err)
		}
		return s
	}

	job.ID = get("id")
	job.SourceKey = get("sourceKey")
	job.OutputPrefix = get("outputPrefix")
	format, pixelFormat := get("format"), get("pixelFormat")
	fps, maxFrames, requestedAt := get("fps"), get("maxFrames"), get("requestedAt")
	if len(errs) > 0 {
		return ExtractionJob{}, errors.Join(errs...)
	}

	var err error
	if job.Format, err = frame.ParseImageFormat(format); err != nil {
		return ExtractionJob{}, err
	}
	if job.PixelFormat, err = frame.ParsePixelFormat(pixelFormat); err != nil {
		return ExtractionJob{}, err
	}
	if job.FPS, err = strconv.ParseFloat(fps, 64); err != nil {
		return ExtractionJob{}, fmt.Errorf("invalid fps %q: %w", fps, err)
	}
	if job.MaxFrames, err = strconv.Atoi(maxFrames); err != nil {
		return ExtractionJob{}, fmt.Errorf("invalid maxFrames %q: %w", maxFrames, err)
	}
	if job.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAt); err != nil {
		return ExtractionJob{}, fmt.Errorf("invalid requestedAt %q: %w", requestedAt, err)
	}

	return job, job.Validate()
}

func (j ExtractionJob) Validate() error {
	switch {
	case j.ID == "":
		return errors.New("job has no ID")
	case j.SourceKey == "":
		return errors.New("job has no source key")
	case j.OutputPrefix == "":
		return errors.New("job has no output prefix")
	case j.FPS < 0:
		return fmt.Errorf("negative fps %v", j.FPS)
	case j.MaxFrames < 0:
		return fmt.Errorf("negative max frames %d", j.MaxFrames)
	}
	return nil
}
