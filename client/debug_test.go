package client

import (
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/sensorstore/data"
)

func TestString(t *testing.T) {
	b, err := data.EncodeIngest(data.SensorGyroscope, map[string]int{"x": 1})
	if err != nil {
		t.Fatal("encode error: ", err)
	}

	s, err := String(&nats.Msg{Subject: SubjectSensorMsg, Data: b})
	if err != nil {
		t.Fatal("string error: ", err)
	}

	if !strings.Contains(s, "gyroscope") {
		t.Fatal("expected sensor type in output: ", s)
	}

	p := data.Point{Type: data.PointTypeMetricIngestCycle, Value: 2, Min: 1, Max: 3, Count: 4}
	pb, err := p.ToJSON()
	if err != nil {
		t.Fatal("point encode error: ", err)
	}

	s, err = String(&nats.Msg{Subject: SubjectMetrics("abc"), Data: pb})
	if err != nil {
		t.Fatal("string error: ", err)
	}

	if !strings.Contains(s, "abc") || !strings.Contains(s, data.PointTypeMetricIngestCycle) {
		t.Fatal("unexpected metric output: ", s)
	}

	if _, err := String(&nats.Msg{Subject: "foo.bar"}); err == nil {
		t.Fatal("expected error for unknown subject")
	}
}
