/*
Package client contains utilities for talking to a sensor store over NATS.

Producers use [SendSensorData] and [SendAction] to publish on the sensor
message subject. Operators use the Admin* helpers for maintenance requests
that are not part of the producer message contract. [EdgeConnect] sets up a
NATS connection with reconnect backoff suitable for devices.
*/
package client
