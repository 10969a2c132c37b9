package client

import (
	"fmt"
	"strings"
)

// returns protocol, server, port, err
func parseURI(uri string) (string, string, string, error) {
	uri = strings.TrimSpace(uri)
	proto, server, found := strings.Cut(uri, "://")
	if !found {
		return "", "", "", fmt.Errorf("URI %v does not contain ://", uri)
	}

	server, port, _ := strings.Cut(server, ":")

	return proto, server, port, nil
}

// sanitizeURI fills in the default port for the protocol if it is missing
func sanitizeURI(uri string) (string, error) {
	proto, server, port, err := parseURI(uri)
	if err != nil {
		return uri, err
	}

	if port == "" {
		switch proto {
		case "ws":
			port = "80"
		case "wss":
			port = "443"
		default:
			port = "4222"
		}
	}

	return fmt.Sprintf("%v://%v:%v", proto, server, port), nil
}
