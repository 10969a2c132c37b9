package client

import "fmt"

// SubjectSensorMsg is the subject producers publish sensor and control
// messages on. The store never replies on it.
const SubjectSensorMsg = "sensor.msg"

// Admin subjects. These use request/reply.
const (
	SubjectAdminRecreate = "admin.sensorStore.recreate"
	SubjectAdminOpen     = "admin.sensorStore.open"
	SubjectAdminCount    = "admin.sensorStore.count"
	SubjectAdminEntries  = "admin.sensorStore.entries"
)

// SubjectMetrics constructs the subject a store instance publishes its
// metric points on
func SubjectMetrics(id string) string {
	return fmt.Sprintf("metrics.sensorStore.%v", id)
}

// SubjectMetricsAll matches the metrics of every store instance
func SubjectMetricsAll() string {
	return "metrics.sensorStore.*"
}
