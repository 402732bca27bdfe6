package pipeline

import "time"

// Sample is one published measurement.
type Sample struct {
	Session   string    `json:"session"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	DX        int16     `json:"dx"`
	DY        int16     `json:"dy"`
	Quality   uint8     `json:"quality"`
	Status    string    `json:"status"`
	Saturated bool      `json:"saturated,omitempty"`
	CycleMs   float64   `json:"cycle_ms"`
}

// Report summarises loop timing over a window of cycles.
type Report struct {
	Session     string  `json:"session"`
	Cycles      uint64  `json:"cycles"`
	MeanMs      float64 `json:"mean_ms"`
	StdDevMs    float64 `json:"stddev_ms"`
	FPS         float64 `json:"fps"`
	Sent        uint64  `json:"sent"`
	Dropped     uint64  `json:"dropped"`
	Degraded    uint64  `json:"degraded"`
	Saturations uint64  `json:"saturations"`
}
