package client

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/sensorstore/data"
)

// Metric is a type that can be used to track metrics and periodically report
// them on a subject. Data is queued and averaged and then the average is sent
// out as a point.
type Metric struct {
	// config
	nc           *nats.Conn
	subject      string
	reportPeriod time.Duration

	// internal state
	lastReport time.Time
	lock       sync.Mutex
	avg        *data.PointAverager
}

// NewMetric creates a new metric. nc may be nil, in which case samples are
// averaged but never sent.
func NewMetric(nc *nats.Conn, subject, pointType string, reportPeriod time.Duration) *Metric {
	return &Metric{
		nc:           nc,
		subject:      subject,
		reportPeriod: reportPeriod,
		lastReport:   time.Now(),
		avg:          data.NewPointAverager(pointType),
	}
}

// AddSample adds a sample and reports it if reportPeriod has expired
func (m *Metric) AddSample(s float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	now := time.Now()
	m.avg.AddSample(now, s)

	if now.Sub(m.lastReport) > m.reportPeriod {
		p := m.avg.GetAverage()
		m.avg.ResetAverage()
		m.lastReport = now

		if m.nc == nil {
			return nil
		}

		b, err := p.ToJSON()
		if err != nil {
			return err
		}

		return m.nc.Publish(m.subject, b)
	}

	return nil
}
