package qr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
)

var (
	// ErrCameraUnavailable is returned when the camera cannot be acquired
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrFrameNotReady may be returned by Camera.Frame to skip an attempt
	ErrFrameNotReady = errors.New("frame not ready")
)

// Camera is a frame source held for the duration of one scan session
type Camera interface {
	Acquire(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Release() error
}

// Recorder receives scan and dispense observations
type Recorder interface {
	RecordQRScan(outcome string)
	RecordDispense(outcome string)
}

// Scanner polls a camera for a QR code
type Scanner struct {
	codec    *Codec
	interval time.Duration
	logger   *logrus.Entry
	recorder Recorder
}

// NewScanner creates a scanner sampling one frame per interval
func NewScanner(codec *Codec, interval time.Duration, log *logger.Logger, recorder Recorder) *Scanner {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Scanner{
		codec:    codec,
		interval: interval,
		logger:   log.WithComponent("qr_scanner"),
		recorder: recorder,
	}
}

// Scan acquires camera and samples frames until one decodes or ctx ends.
// The camera is released on every return path.
func (s *Scanner) Scan(ctx context.Context, camera Camera) (token string, err error) {
	return s.scan(ctx, camera, nil)
}

// scan is Scan with an optional hook told when each frame starts and stops decoding
func (s *Scanner) scan(ctx context.Context, camera Camera, decoding func(active bool)) (string, error) {
	if decoding == nil {
		decoding = func(bool) {}
	}
	if err := camera.Acquire(ctx); err != nil {
		s.record("camera_unavailable")
		return "", fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if rerr := camera.Release(); rerr != nil {
			s.logger.WithError(rerr).Warn("Failed to release camera")
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		frame, ferr := camera.Frame(ctx)
		switch {
		case ferr == nil:
			attempts++
			decoding(true)
			if text, ok := s.codec.DecodeImage(frame); ok {
				s.logger.WithField("attempts", attempts).Debug("QR code decoded")
				s.record("decoded")
				return text, nil
			}
			decoding(false)
		case errors.Is(ferr, ErrFrameNotReady):
		default:
			s.record("error")
			return "", fmt.Errorf("failed to read camera frame: %w", ferr)
		}

		select {
		case <-ctx.Done():
			s.record("canceled")
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scanner) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordQRScan(outcome)
	}
}
