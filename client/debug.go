package client

import (
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/sensorstore/data"
)

// String converts a NATS message seen on the sensor store subjects to a
// human readable string
func String(msg *nats.Msg) (string, error) {
	switch {
	case msg.Subject == SubjectSensorMsg:
		m, err := data.DecodeMessage(msg.Data)
		if err != nil {
			return fmt.Sprintf("SENSOR: invalid message (%v): %s", err, msg.Data), nil
		}
		return fmt.Sprintf("SENSOR: %v", m), nil

	case strings.HasPrefix(msg.Subject, "metrics.sensorStore."):
		p, err := data.DecodePoint(msg.Data)
		if err != nil {
			return "", fmt.Errorf("error decoding metric point: %w", err)
		}
		id := strings.TrimPrefix(msg.Subject, "metrics.sensorStore.")
		return fmt.Sprintf("METRIC %v: %v avg: %.2f min: %.2f max: %.2f samples: %v",
			id, p.Type, p.Value, p.Min, p.Max, p.Count), nil

	case strings.HasPrefix(msg.Subject, "admin.sensorStore."):
		return fmt.Sprintf("ADMIN: %v", strings.TrimPrefix(msg.Subject, "admin.sensorStore.")), nil
	}

	return "", fmt.Errorf("don't know how to decode this subject: %v", msg.Subject)
}

// Dump displays a NATS message
func Dump(msg *nats.Msg) {
	s, err := String(msg)
	if err != nil {
		log.Println("Error decoding message:", err)
		return
	}
	log.Println(s)
}

// Log all sensor store messages on a NATS server. Blocks until the
// connection is closed.
func Log(server, auth string) error {
	closed := make(chan struct{})

	nc, err := EdgeConnect(EdgeOptions{
		URI:       server,
		AuthToken: auth,
		Connected: func() {
			log.Println("NATS: connected")
		},
		Disconnected: func() {
			log.Println("NATS: disconnected")
		},
		Reconnected: func() {
			log.Println("NATS: reconnected")
		},
		Closed: func() {
			close(closed)
		},
	})

	if err != nil {
		return fmt.Errorf("error connecting to nats server: %w", err)
	}

	for _, sub := range []string{"sensor.>", "admin.sensorStore.>", "metrics.sensorStore.>"} {
		if _, err := nc.Subscribe(sub, Dump); err != nil {
			nc.Close()
			return fmt.Errorf("subscribe %v error: %w", sub, err)
		}
	}

	<-closed
	return nil
}
