package server

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// natsOptions maps the sensor store options onto the embedded NATS server.
// Producers connect over TCP or, from a browser, over the websocket
// listener.
func natsOptions(o Options) (*server.Options, error) {
	opts := &server.Options{
		Port:          o.NatsPort,
		HTTPPort:      o.NatsHTTPPort,
		Authorization: o.AuthToken,
		NoSigs:        true,
	}

	if o.NatsTLSCert != "" && o.NatsTLSKey != "" {
		tc := server.TLSConfigOpts{
			CertFile: o.NatsTLSCert,
			KeyFile:  o.NatsTLSKey,
			CaFile:   o.NatsTLSCaCert,
			Verify:   o.NatsTLSVerify,
		}

		tlsConfig, err := server.GenTLSConfig(&tc)
		if err != nil {
			return nil, fmt.Errorf("Error setting up TLS: %v", err)
		}

		opts.TLS = true
		opts.TLSCert = o.NatsTLSCert
		opts.TLSKey = o.NatsTLSKey
		opts.TLSCaCert = o.NatsTLSCaCert
		opts.TLSVerify = o.NatsTLSVerify
		opts.TLSTimeout = o.NatsTLSTimeout
		opts.TLSConfig = tlsConfig
	} else if o.NatsTLSCaCert != "" || o.NatsTLSVerify {
		return nil, fmt.Errorf("TLS CA cert and verify require a TLS cert and key")
	}

	if o.NatsWSPort != 0 {
		ws := &opts.Websocket
		ws.Port = o.NatsWSPort
		ws.Token = o.AuthToken
		ws.AuthTimeout = o.NatsTLSTimeout
		// browsers reach the store through a TLS terminating proxy
		ws.NoTLS = true
		ws.HandshakeTimeout = time.Second * 20
		ws.SameOrigin = o.NatsWSSameOrigin
		ws.AllowedOrigins = o.NatsWSAllowedOrigins
	}

	return opts, nil
}

// newNatsServer creates the embedded NATS server
func newNatsServer(o Options) (*server.Server, error) {
	opts, err := natsOptions(o)
	if err != nil {
		return nil, err
	}

	natsServer, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("Error create new Nats server: %v", err)
	}

	authEnabled := "no"
	if o.AuthToken != "" {
		authEnabled = "yes"
	}

	log.Printf("NATS: server port: %v, http port: %v, auth enabled: %v, tls: %v\n",
		o.NatsPort, o.NatsHTTPPort, authEnabled, opts.TLS)

	if o.NatsWSPort != 0 {
		origins := "any"
		switch {
		case len(o.NatsWSAllowedOrigins) > 0:
			origins = fmt.Sprintf("%v", o.NatsWSAllowedOrigins)
		case o.NatsWSSameOrigin:
			origins = "same origin"
		}
		log.Printf("NATS: websocket for browser producers on port: %v, origins: %v\n",
			o.NatsWSPort, origins)
	}

	return natsServer, nil
}
