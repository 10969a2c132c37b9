package client

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/sensorstore/data"
)

// SendSensorData publishes a sensor reading. payload is JSON encoded, pass
// a json.RawMessage to send already encoded data as is.
func SendSensorData(nc *nats.Conn, t data.SensorType, payload any) error {
	b, err := data.EncodeIngest(t, payload)
	if err != nil {
		return err
	}

	return nc.Publish(SubjectSensorMsg, b)
}

// SendAction publishes a control message
func SendAction(nc *nats.Conn, a data.Action) error {
	b, err := data.EncodeAction(a)
	if err != nil {
		return err
	}

	return nc.Publish(SubjectSensorMsg, b)
}

// SendRaw publishes an already encoded message. The store drops anything
// that does not decode to a valid message.
func SendRaw(nc *nats.Conn, msg json.RawMessage) error {
	return nc.Publish(SubjectSensorMsg, msg)
}
