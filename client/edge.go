package client

import (
	"log"
	"net"
	"time"

	"github.com/nats-io/nats.go"
)

// EdgeOptions describes options for connecting edge devices
type EdgeOptions struct {
	URI          string
	AuthToken    string
	NoEcho       bool
	Connected    func()
	Disconnected func()
	Reconnected  func()
	Closed       func()
}

func call(f func()) {
	if f != nil {
		f()
	}
}

// EdgeConnect is a function that attempts connections for edge devices with appropriate
// timeouts, backups, etc. Currently set to disconnect if we don't have a connection after 6m,
// and then exp backup to try to connect every 6m after that.
func EdgeConnect(eo EdgeOptions) (*nats.Conn, error) {
	authEnabled := "no"
	if eo.AuthToken != "" {
		authEnabled = "yes"
	}

	natsErrHandler := func(_ *nats.Conn, sub *nats.Subscription, natsErr error) {
		if natsErr == nats.ErrSlowConsumer && sub != nil {
			pendingMsgs, _, err := sub.Pending()
			if err != nil {
				log.Println("NATS: couldn't get pending messages:", err)
				return
			}
			log.Printf("NATS: falling behind with %d pending messages on subject %q",
				pendingMsgs, sub.Subject)
			return
		}
		log.Println("NATS: client error:", natsErr)
	}

	edgeOptions := func(o *nats.Options) error {
		nats.Timeout(30 * time.Second)(o)
		nats.DrainTimeout(30 * time.Second)(o)
		nats.PingInterval(2 * time.Minute)(o)
		nats.MaxPingsOutstanding(3)(o)
		nats.RetryOnFailedConnect(true)(o)
		nats.ReconnectBufSize(128 * 1024)(o)
		nats.ReconnectWait(10 * time.Second)(o)
		nats.MaxReconnects(-1)(o)
		nats.SetCustomDialer(&net.Dialer{
			KeepAlive: -1,
		})(o)
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			delay := ExpBackoff(attempts, 6*time.Minute)
			log.Printf("NATS: reconnect attempts: %v, delay: %v", attempts, delay)
			return delay
		})(o)
		nats.Token(eo.AuthToken)(o)

		if eo.NoEcho {
			o.NoEcho = true
		}

		nats.ErrorHandler(natsErrHandler)(o)
		nats.ConnectHandler(func(_ *nats.Conn) { call(eo.Connected) })(o)
		nats.ReconnectHandler(func(_ *nats.Conn) { call(eo.Reconnected) })(o)
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) { call(eo.Disconnected) })(o)
		nats.ClosedHandler(func(_ *nats.Conn) { call(eo.Closed) })(o)

		return nil
	}

	uri, err := sanitizeURI(eo.URI)
	if err != nil {
		log.Printf("NATS: error sanitizing URI %v: %v", eo.URI, err)
	}

	log.Printf("NATS: edge connect to: %v, auth enabled: %v", uri, authEnabled)
	return nats.Connect(uri, edgeOptions)
}
