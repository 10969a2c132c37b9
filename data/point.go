package data

import (
	"encoding/json"
	"time"
)

// Metric point types reported by the store
const (
	PointTypeMetricIngestCycle = "metricIngestCycle"
	PointTypeMetricPendingMsgs = "metricPendingMsgs"
	PointTypeMetricProcCPU     = "metricProcCPUPercent"
	PointTypeMetricProcRSS     = "metricProcMemRSS"
)

// Point is a single averaged metric sample. Value is the average over the
// report period, Min and Max are the extremes seen in that period.
type Point struct {
	Type  string    `json:"type"`
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Count int       `json:"count"`
}

// ToJSON encodes the point for publishing
func (p Point) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePoint decodes a published point
func DecodePoint(b []byte) (Point, error) {
	var p Point
	err := json.Unmarshal(b, &p)
	return p, err
}
