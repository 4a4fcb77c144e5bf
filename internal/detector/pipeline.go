// Package detector abstracts the inference backend that turns video files
// and single frames into object detections. The production backend is an
// HTTP inference service; tests use the scripted mock.
package detector

import (
	"context"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

// Pipeline is the interface every inference backend implements.
type Pipeline interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// ProcessVideo runs detection over a whole video. The backend streams
	// one Unit per sampled frame; onUnit is invoked in order for each.
	// Returning an error from onUnit aborts the stream and is returned
	// from ProcessVideo unchanged.
	ProcessVideo(ctx context.Context, req VideoRequest, onUnit func(Unit) error) error

	// DetectFrame runs detection on a single encoded image.
	DetectFrame(ctx context.Context, req FrameRequest) (FrameResult, error)

	// Ping reports whether the backend is reachable and ready.
	Ping(ctx context.Context) error
}

// VideoRequest describes one video detection run.
type VideoRequest struct {
	// Path is the video file location shared with the inference service.
	Path string `json:"path"`

	ConfThreshold float64 `json:"conf_threshold"`
	IOUThreshold  float64 `json:"iou_threshold"`
	ImageSize     int     `json:"image_size"`

	// Classes restricts detection to the given class IDs. Empty means all.
	Classes []int `json:"classes,omitempty"`

	// SaveOutput asks the backend to render an annotated copy of the
	// video to OutputPath, a location shared with the inference service.
	SaveOutput bool   `json:"save_output,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// Unit is the detection output for one sampled frame of a video.
type Unit struct {
	Index         int                `json:"index"`
	Total         int                `json:"total"`
	TimestampSecs float64            `json:"timestamp"`
	Detections    []models.Detection `json:"detections"`

	// Error is set when the backend failed on this frame but could
	// continue with the rest of the video.
	Error string `json:"error,omitempty"`
}

// FrameRequest describes a single-image detection call.
type FrameRequest struct {
	// ImageBase64 is the base64-encoded image payload.
	ImageBase64 string `json:"image_base64"`

	ConfThreshold float64 `json:"conf_threshold"`
	IOUThreshold  float64 `json:"iou_threshold"`
	ImageSize     int     `json:"image_size"`
	Classes       []int   `json:"classes,omitempty"`
}

// FrameResult is the detection output for a single image.
type FrameResult struct {
	Detections []models.Detection `json:"detections"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
}
