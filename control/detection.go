package control

import "time"

// DetectionEvent is the result of one inference pass, pushed by the
// detection pipeline. The controller keeps at most the most recent event;
// there is no queue.
type DetectionEvent struct {
	Detected        bool      `json:"detected"`
	ClassName       string    `json:"class_name,omitempty"`
	Confidence      float64   `json:"confidence"`
	CentroidX       float64   `json:"centroid_x"`
	CentroidY       float64   `json:"centroid_y"`
	DetectionCount  int       `json:"detection_count"`
	InferenceTimeMS float64   `json:"inference_time_ms"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}
