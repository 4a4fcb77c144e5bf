package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/seatmetrics/seatwatch/internal/api/response"
	"github.com/seatmetrics/seatwatch/internal/detector"
	"github.com/seatmetrics/seatwatch/internal/live"
)

const maxFrameBytes = 32 << 20

// FrameProcessor is the live-session operation the frame handlers depend on.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, imageBase64 string) (*live.FrameResponse, error)
}

// NewProcessFrameHandler returns the handler for POST /api/v1/frames:
// a JSON body carrying one base64-encoded image.
func NewProcessFrameHandler(session FrameProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImageBase64 string `json:"image_base64"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxFrameBytes)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ImageBase64 == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image_base64 is required", nil)
			return
		}
		if _, err := base64.StdEncoding.DecodeString(req.ImageBase64); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image_base64 is not valid base64", nil)
			return
		}

		serveFrame(w, r, session, req.ImageBase64)
	}
}

// NewUploadFrameHandler returns the handler for POST /api/v1/frames/upload:
// a multipart form carrying a binary image file.
func NewUploadFrameHandler(session FrameProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)
		file, _, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image file is required", nil)
			return
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read image", nil)
			return
		}
		if len(raw) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image file is empty", nil)
			return
		}

		serveFrame(w, r, session, base64.StdEncoding.EncodeToString(raw))
	}
}

func serveFrame(w http.ResponseWriter, r *http.Request, session FrameProcessor, imageBase64 string) {
	result, err := session.ProcessFrame(r.Context(), imageBase64)
	if err != nil {
		switch {
		case errors.Is(err, detector.ErrPipelineUnavailable):
			response.Error(w, http.StatusBadGateway, "DETECTOR_UNAVAILABLE", "Detection backend unreachable", nil)
		case errors.Is(err, detector.ErrInferenceTimeout):
			response.Error(w, http.StatusGatewayTimeout, "DETECTOR_TIMEOUT", "Detection timed out", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Frame processing failed", nil)
		}
		return
	}
	response.JSON(w, result)
}
