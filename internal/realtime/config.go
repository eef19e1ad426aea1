// Package realtime connects the chat client to the pub/sub service that
// pushes message events. A self-hosted broker and the hosted cloud service
// both speak the Pusher channel protocol; they differ only in URL.
package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Protocol names the configured transport.
type Protocol string

const (
	ProtocolNone   Protocol = ""
	ProtocolBroker Protocol = "broker"
	ProtocolCloud  Protocol = "cloud"
)

const protocolQuery = "protocol=7&client=medgama-go&version=1.0"

// BrokerConfig locates the self-hosted broker.
type BrokerConfig struct {
	Key    string
	Host   string
	Port   string
	Scheme string
}

// CloudConfig locates the hosted pub/sub service.
type CloudConfig struct {
	Key     string
	Cluster string
}

// Config selects a transport and the REST base used for channel authorization.
type Config struct {
	Broker     BrokerConfig
	Cloud      CloudConfig
	APIBaseURL string
}

// Protocol reports which transport is usable. The broker wins when both are set.
func (c Config) Protocol() Protocol {
	if c.Broker.Key != "" && c.Broker.Host != "" && c.Broker.Port != "" {
		return ProtocolBroker
	}
	if c.Cloud.Key != "" && c.Cloud.Cluster != "" {
		return ProtocolCloud
	}
	return ProtocolNone
}

// SocketURL returns the websocket URL of the selected transport.
func (c Config) SocketURL() (string, error) {
	switch c.Protocol() {
	case ProtocolBroker:
		scheme := "ws"
		switch strings.ToLower(c.Broker.Scheme) {
		case "wss", "https":
			scheme = "wss"
		}
		return fmt.Sprintf("%s://%s:%s/app/%s?%s", scheme, c.Broker.Host, c.Broker.Port, url.PathEscape(c.Broker.Key), protocolQuery), nil
	case ProtocolCloud:
		return fmt.Sprintf("wss://ws-%s.pusher.com/app/%s?%s", c.Cloud.Cluster, url.PathEscape(c.Cloud.Key), protocolQuery), nil
	default:
		return "", ErrNotConfigured
	}
}

// AuthEndpoint derives the channel authorization URL from the REST API base
// by dropping its "/api" suffix.
func AuthEndpoint(apiBase string) string {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	base = strings.TrimSuffix(base, "/api")
	return base + "/broadcasting/auth"
}
