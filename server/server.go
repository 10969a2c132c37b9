package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/oklog/run"
	"github.com/simpleiot/sensorstore/client"
	"github.com/simpleiot/sensorstore/store"
)

// ErrServerStopped is returned when the server is stopped
var ErrServerStopped = errors.New("Server stopped")

var _ client.RunStop = (*Server)(nil)

// Server represents a sensor store server process: an embedded NATS server,
// the NATS client the store listens on, and the store itself.
type Server struct {
	nc                 *nats.Conn
	options            Options
	natsServer         *server.Server
	store              *store.Store
	chNatsClientClosed chan struct{}
	chStop             chan struct{}
	stopOnce           sync.Once
	chWaitStart        chan struct{}
}

// NewServer creates a new server
func NewServer(o Options) (*Server, *nats.Conn, error) {
	chNatsClientClosed := make(chan struct{})

	// start the server side nats client
	nc, err := nats.Connect(o.NatsServer,
		nats.Name("sensorstore"),
		nats.Timeout(10*time.Second),
		nats.PingInterval(60*5*time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5*1024*1024),
		nats.SetCustomDialer(&net.Dialer{
			KeepAlive: -1,
		}),
		nats.Token(o.AuthToken),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ErrorHandler(func(_ *nats.Conn,
			sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			log.Printf("NATS: server client error, sub: %v, err: %s\n", subject, err)
		}),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			log.Println("NATS: server client reconnect attempt #", attempts)
			return time.Millisecond * 250
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("NATS: server client reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Println("NATS: server client closed")
			close(chNatsClientClosed)
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			log.Println("NATS: server client connected")
		}),
	)

	if err != nil {
		return nil, nil, fmt.Errorf("Error connecting NATS client: %w", err)
	}

	st, err := store.NewStore(store.Params{
		File: o.StoreFile(),
		Nc:   nc,
		ID:   o.ID,
	})

	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("Error creating store: %w", err)
	}

	if o.ResetStore {
		log.Println("SensorStore: resetting store:", o.StoreFile())
		if err := st.Reset(); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("Error resetting store: %w", err)
		}
	}

	return &Server{
		nc:                 nc,
		options:            o,
		store:              st,
		chNatsClientClosed: chNatsClientClosed,
		chStop:             make(chan struct{}),
		chWaitStart:        make(chan struct{}),
	}, nc, nil
}

// Store returns the sensor store served by this server
func (s *Server) Store() *store.Store {
	return s.store
}

// Run the server -- only returns if there is an error
func (s *Server) Run() error {
	var g run.Group

	logLS := func(_ ...any) {}

	if s.options.DebugLifecycle {
		logLS = func(m ...any) {
			log.Println(m...)
		}
	}

	o := s.options

	var err error

	// anything that needs to use the store or nats server should add to this wait group.
	// The nats server will wait on this before shutting down
	var storeWg sync.WaitGroup

	// ====================================
	// Nats server
	// ====================================
	if !o.NatsDisableServer {
		s.natsServer, err = newNatsServer(o)
		if err != nil {
			return fmt.Errorf("Error setting up nats server: %v", err)
		}

		g.Add(func() error {
			s.natsServer.Start()
			s.natsServer.WaitForShutdown()
			logLS("LS: Exited: nats server")
			return fmt.Errorf("NATS server stopped")
		}, func(_ error) {
			go func() {
				storeWg.Wait()
				s.natsServer.Shutdown()
				logLS("LS: Shutdown: nats server")
			}()
		})
	}

	// ====================================
	// Sensor store
	// ====================================
	storeWaitCtx, storeWaitCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer storeWaitCancel()

	storeWg.Add(1)
	g.Add(func() error {
		defer storeWg.Done()
		err := s.store.Run()
		logLS("LS: Exited: store")
		return err
	}, func(err error) {
		s.store.Stop(err)
		logLS("LS: Shutdown: store")
	})

	storeWg.Add(1)
	g.Add(func() error {
		defer storeWg.Done()
		err := s.store.WaitStart(storeWaitCtx)
		if err != nil {
			logLS("LS: Exited: metrics timeout waiting for store")
			return err
		}

		err = s.store.StartMetrics()
		logLS("LS: Exited: store metrics")
		return err
	}, func(err error) {
		s.store.StopMetrics(err)
		logLS("LS: Shutdown: store metrics")
	})

	// Give us a way to stop the server
	// and signal to waiters we have started
	chShutdown := make(chan struct{})
	g.Add(func() error {
		err := s.store.WaitStart(storeWaitCtx)
		if err != nil {
			logLS("LS: Exited: server stopper, timeout waiting for store")
			return err
		}

		select {
		case <-s.chStop:
			logLS("LS: Exited: stop handler")
			return ErrServerStopped
		case <-chShutdown:
			logLS("LS: Exited: stop handler")
			return nil
		}
	}, func(_ error) {
		close(chShutdown)
		logLS("LS: Shutdown: stop handler")
	})

	chRunError := make(chan error)

	go func() {
		chRunError <- g.Run()
	}()

	var retErr error

done:
	for {
		select {
		// unblock any waits
		case <-s.chWaitStart:
			// No-op, reading channel is enough to unblock wait
		case retErr = <-chRunError:
			break done
		}
	}

	s.nc.Close()

	return retErr
}

// Stop server
func (s *Server) Stop(_ error) {
	s.stopOnce.Do(func() { close(s.chStop) })
}

// WaitStart waits for server to start. Clients should wait for this
// to complete before sending messages.
func (s *Server) WaitStart(ctx context.Context) error {
	waitDone := make(chan struct{})

	go func() {
		// the following will block until the main server select
		// loop starts
		select {
		case s.chWaitStart <- struct{}{}:
			close(waitDone)
		case <-ctx.Done():
		}
	}()

	select {
	case <-ctx.Done():
		return errors.New("Server wait timeout or canceled")
	case <-waitDone:
		// all is well
		return nil
	}
}
