// Package kafka carries OTP events between the API server and the mail worker.
package kafka

import (
	"crypto/tls"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

type Config struct {
	Broker   string
	Topic    string
	GroupID  string
	Username string
	Password string
	TLS      bool
}

func (c Config) mechanism() sasl.Mechanism {
	if c.Username == "" {
		return nil
	}
	return plain.Mechanism{Username: c.Username, Password: c.Password}
}

func (c Config) tlsConfig() *tls.Config {
	if !c.TLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func (c Config) transport() *kafka.Transport {
	return &kafka.Transport{
		SASL: c.mechanism(),
		TLS:  c.tlsConfig(),
	}
}

func (c Config) dialer() *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           c.tlsConfig(),
		SASLMechanism: c.mechanism(),
	}
}
