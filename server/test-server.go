package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/sensorstore/store"
)

// freePort asks the kernel for a port that is currently unused
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// TestServer starts a server with its store in dataDir and waits for the
// store to be ready. It returns a NATS connection producers can use, the
// store, and a function to stop the server.
func TestServer(dataDir string) (*nats.Conn, *store.Store, func(), error) {
	port, err := freePort()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("Error finding free port: %v", err)
	}

	o := DefaultOptions()
	o.DataDir = dataDir
	o.NatsPort = port
	o.NatsHTTPPort = 0
	o.NatsWSPort = 0
	o.NatsServer = fmt.Sprintf("nats://127.0.0.1:%v", port)
	o.ID = "test"

	s, nc, err := NewServer(o)

	if err != nil {
		return nil, nil, nil, fmt.Errorf("Error starting sensor store server: %v", err)
	}

	stopped := make(chan struct{})

	go func() {
		err := s.Run()
		if err != nil {
			log.Println("Test Server run returned: ", err)
		}
		close(stopped)
	}()

	stop := func() {
		s.Stop(nil)
		<-stopped
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err = s.WaitStart(ctx)
	if err != nil {
		return nil, nil, stop, fmt.Errorf("Error waiting for test server to start: %v", err)
	}

	err = s.Store().WaitReady(ctx)
	if err != nil {
		return nil, nil, stop, fmt.Errorf("Error waiting for store to open: %v", err)
	}

	for !nc.IsConnected() {
		select {
		case <-ctx.Done():
			return nil, nil, stop, fmt.Errorf("Timeout waiting for NATS client to connect")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// make sure the store subscriptions reached the server before
	// producers start publishing
	if err := nc.FlushTimeout(time.Second * 5); err != nil {
		return nil, nil, stop, fmt.Errorf("Error flushing NATS connection: %v", err)
	}

	return nc, s.Store(), stop, nil
}
