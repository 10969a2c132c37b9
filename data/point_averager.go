package data

import (
	"time"
)

// PointAverager accumulates samples, and averages them. The average can
// be reset.
type PointAverager struct {
	total     float64
	count     int
	min       float64
	max       float64
	pointType string
	pointTime time.Time
}

// NewPointAverager initializes and returns an averager
func NewPointAverager(pointType string) *PointAverager {
	return &PointAverager{
		pointType: pointType,
	}
}

// AddSample adds a sample value taken at time t
func (pa *PointAverager) AddSample(t time.Time, v float64) {
	// avg point timestamp is set to last sample time
	if t.After(pa.pointTime) {
		pa.pointTime = t
	}

	if pa.count == 0 || v < pa.min {
		pa.min = v
	}
	if pa.count == 0 || v > pa.max {
		pa.max = v
	}

	pa.total += v
	pa.count++
}

// Count returns the number of samples since the last reset
func (pa *PointAverager) Count() int {
	return pa.count
}

// ResetAverage sets the accumulated total to zero
func (pa *PointAverager) ResetAverage() {
	pa.total = 0
	pa.count = 0
	pa.min = 0
	pa.max = 0
}

// GetAverage returns the average of the accumulated samples
func (pa *PointAverager) GetAverage() Point {
	var value float64
	if pa.count != 0 {
		value = pa.total / float64(pa.count)
	}

	return Point{
		Type:  pa.pointType,
		Time:  pa.pointTime,
		Value: value,
		Min:   pa.min,
		Max:   pa.max,
		Count: pa.count,
	}
}
