package detector

import (
	"context"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

// Mock satisfies Pipeline for testing and for running without an inference
// service attached.
type Mock struct {
	Name_            string
	ProcessVideoFunc func(ctx context.Context, req VideoRequest, onUnit func(Unit) error) error
	DetectFrameFunc  func(ctx context.Context, req FrameRequest) (FrameResult, error)
	PingFunc         func(ctx context.Context) error
}

func (m *Mock) Name() string {
	if m.Name_ != "" {
		return m.Name_
	}
	return "mock"
}

func (m *Mock) ProcessVideo(ctx context.Context, req VideoRequest, onUnit func(Unit) error) error {
	if m.ProcessVideoFunc != nil {
		return m.ProcessVideoFunc(ctx, req, onUnit)
	}
	return nil
}

func (m *Mock) DetectFrame(ctx context.Context, req FrameRequest) (FrameResult, error) {
	if m.DetectFrameFunc != nil {
		return m.DetectFrameFunc(ctx, req)
	}
	return FrameResult{Detections: []models.Detection{}}, nil
}

func (m *Mock) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// NewMock returns a Mock that streams a short canned video: one person on a
// fixed seat across three frames.
func NewMock() *Mock {
	person := models.Detection{
		ClassID:    models.ClassPerson,
		ClassName:  "person",
		Confidence: 0.92,
		BBox:       models.BoundingBox{X1: 120, Y1: 80, X2: 240, Y2: 320},
	}
	return &Mock{
		Name_: "mock",
		ProcessVideoFunc: func(ctx context.Context, _ VideoRequest, onUnit func(Unit) error) error {
			for i := 0; i < 3; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				unit := Unit{
					Index:         i,
					Total:         3,
					TimestampSecs: float64(i),
					Detections:    []models.Detection{person},
				}
				if err := onUnit(unit); err != nil {
					return err
				}
			}
			return nil
		},
		DetectFrameFunc: func(_ context.Context, _ FrameRequest) (FrameResult, error) {
			return FrameResult{Detections: []models.Detection{person}, Width: 640, Height: 480}, nil
		},
	}
}

// NewScriptedMock returns a Mock that streams the given units in order.
func NewScriptedMock(units []Unit) *Mock {
	return &Mock{
		Name_: "mock-scripted",
		ProcessVideoFunc: func(ctx context.Context, _ VideoRequest, onUnit func(Unit) error) error {
			for _, unit := range units {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := onUnit(unit); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// NewFailingMock returns a Mock whose every call returns the given error.
func NewFailingMock(err error) *Mock {
	return &Mock{
		Name_: "mock-failing",
		ProcessVideoFunc: func(_ context.Context, _ VideoRequest, _ func(Unit) error) error {
			return err
		},
		DetectFrameFunc: func(_ context.Context, _ FrameRequest) (FrameResult, error) {
			return FrameResult{}, err
		},
		PingFunc: func(_ context.Context) error {
			return err
		},
	}
}

var _ Pipeline = (*Mock)(nil)
