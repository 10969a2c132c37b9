package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/sensorstore/data"
)

var adminTimeout = time.Second * 20

// EntriesResponse is the reply to an entries request
type EntriesResponse struct {
	Entries []data.Entry `json:"entries"`
	Error   string       `json:"error,omitempty"`
}

func adminRequest(nc *nats.Conn, subject string) error {
	resp, err := nc.Request(subject, nil, adminTimeout)
	if err != nil {
		return err
	}

	if len(resp.Data) > 0 {
		return errors.New(string(resp.Data))
	}

	return nil
}

// AdminRecreate deletes the sensor database and opens a fresh one
func AdminRecreate(nc *nats.Conn) error {
	return adminRequest(nc, SubjectAdminRecreate)
}

// AdminOpen opens the sensor database after it was deleted
func AdminOpen(nc *nats.Conn) error {
	return adminRequest(nc, SubjectAdminOpen)
}

// AdminCount returns the number of stored entries
func AdminCount(nc *nats.Conn) (int, error) {
	resp, err := nc.Request(SubjectAdminCount, nil, adminTimeout)
	if err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(string(resp.Data))
	if err != nil {
		return 0, errors.New(string(resp.Data))
	}

	return count, nil
}

// AdminEntries returns all stored entries in key order
func AdminEntries(nc *nats.Conn) ([]data.Entry, error) {
	resp, err := nc.Request(SubjectAdminEntries, nil, adminTimeout)
	if err != nil {
		return nil, err
	}

	var er EntriesResponse
	if err := json.Unmarshal(resp.Data, &er); err != nil {
		return nil, fmt.Errorf("error decoding entries: %w", err)
	}

	if er.Error != "" {
		return nil, errors.New(er.Error)
	}

	return er.Entries, nil
}
