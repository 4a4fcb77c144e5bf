package models

// COCO class IDs the detector is asked to report. Everything else is
// filtered out by the inference server before it reaches us.
const (
	ClassPerson = 0
	ClassChair  = 56
)

// BoundingBox is an axis-aligned box in pixel coordinates, (x1,y1) top-left
// and (x2,y2) bottom-right.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Center returns the box midpoint.
func (b BoundingBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Detection is a single object reported by the detector for one frame.
type Detection struct {
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name,omitempty"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// FrameStatistics are per-unit counts, collected only when a job requests
// include_frame_stats.
type FrameStatistics struct {
	FrameNumber     int `json:"frame_number"`
	TotalDetections int `json:"total_detections"`
	PersonCount     int `json:"person_count"`
	ChairCount      int `json:"chair_count"`
	OccupiedSeats   int `json:"occupied_seats"`
}

// OccupancyEvent is the final state of one tracked seat, emitted into the
// job summary when processing completes.
type OccupancyEvent struct {
	SeatID           int         `json:"seat_id"`
	BBox             BoundingBox `json:"bbox"`
	OccupiedDuration float64     `json:"occupied_duration"`
	TimeExceeded     bool        `json:"time_exceeded"`
}

// DetectionSummary is the complete result of a video job. FrameStatistics is
// present only when the job was created with include_frame_stats.
type DetectionSummary struct {
	TotalUnits       int                `json:"total_units"`
	TotalDetections  int                `json:"total_detections"`
	PersonDetections int                `json:"person_detections"`
	ChairDetections  int                `json:"chair_detections"`
	UniqueSeats      int                `json:"unique_seats"`
	OccupancyEvents  []OccupancyEvent   `json:"occupancy_events"`
	ProcessingTime   float64            `json:"processing_time_seconds"`
	UnitsPerSecond   float64            `json:"units_per_second"`
	FrameStatistics  []FrameStatistics  `json:"frame_statistics,omitempty"`
}
