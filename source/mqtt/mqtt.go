/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mqtt feeds events from an MQTT broker to the broadcast
// service.
//
// A message on a topic that starts with the configured route prefix
// goes to the connection named by the rest of the topic.  A message on
// any other subscribed topic goes to every subscribed connection.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/Comcast/evbus/broadcast"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config follows mosquitto_sub's options where it can.
type Config struct {
	// Broker is a URL like "tcp://localhost:1883".
	Broker   string `yaml:"broker"`
	ClientId string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	KeepAlive     time.Duration `yaml:"keepAlive"`
	CleanSession  bool          `yaml:"cleanSession"`
	AutoReconnect bool          `yaml:"autoReconnect"`

	// Insecure skips checking the broker's cert.
	Insecure bool `yaml:"insecure"`

	// Topics are subscription topics, each with an optional
	// ":QOS" suffix.
	Topics []string `yaml:"topics"`

	// RoutePrefix is the prefix of topics that name a connection.
	RoutePrefix string `yaml:"routePrefix"`

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint `yaml:"quiesce"`

	// RouteTimeout bounds the handling of one message.
	RouteTimeout time.Duration `yaml:"routeTimeout"`
}

// Router is what gets the events.  A broadcast.Service is one.
type Router interface {
	Route(ctx context.Context, connId string, e *broadcast.CloudEvent) error
}

// Source is an MQTT session that routes what it receives.
type Source struct {
	Log    zerolog.Logger
	Config Config
	Router Router
	Client paho.Client
}

// NewSource makes a Source with a client that isn't connected yet.
func NewSource(cfg Config, r Router, log zerolog.Logger) *Source {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 10 * time.Second
	}
	if cfg.Quiesce == 0 {
		cfg.Quiesce = 100
	}
	if cfg.RouteTimeout == 0 {
		cfg.RouteTimeout = 10 * time.Second
	}
	s := &Source{
		Log:    log.With().Str("component", "mqtt").Logger(),
		Config: cfg,
		Router: r,
	}
	s.Client = paho.NewClient(s.Options())
	return s
}

// Options gives the Paho client options for the Source's Config.
func (s *Source) Options() *paho.ClientOptions {
	cfg := s.Config

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientId)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetTLSConfig(&tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	})
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		s.Log.Warn().Err(err).Msg("connection lost")
	})
	return opts
}

// Start connects to the broker and subscribes to the configured
// topics.  Messages are handled until Stop.
func (s *Source) Start(ctx context.Context) error {
	s.Log.Info().Str("broker", s.Config.Broker).Msg("connecting")
	if t := s.Client.Connect(); t.Wait() && t.Error() != nil {
		return errors.Wrapf(t.Error(), "connecting to %s", s.Config.Broker)
	}

	handler := func(client paho.Client, msg paho.Message) {
		s.handle(ctx, msg)
	}

	for _, topic := range s.Config.Topics {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		s.Log.Info().Str("topic", topic).Uint8("qos", qos).Msg("subscribing")
		if t := s.Client.Subscribe(topic, qos, handler); t.Wait() && t.Error() != nil {
			return errors.Wrapf(t.Error(), "subscribing to %s", topic)
		}
	}
	return nil
}

// Stop terminates the MQTT session.
func (s *Source) Stop() {
	s.Log.Info().Msg("disconnecting")
	s.Client.Disconnect(s.Config.Quiesce)
}

// ConnId gives the connection a topic routes to, which is empty
// for a broadcast.
func (s *Source) ConnId(topic string) string {
	p := s.Config.RoutePrefix
	if p == "" || !strings.HasPrefix(topic, p) {
		return ""
	}
	return topic[len(p):]
}

func (s *Source) handle(ctx context.Context, msg paho.Message) {
	topic := msg.Topic()
	log := s.Log.With().Str("topic", topic).Logger()

	e, err := broadcast.ParseEvent(msg.Payload())
	if err != nil {
		log.Warn().Err(err).Msg("dropping message")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.Config.RouteTimeout)
	defer cancel()

	if err = s.Router.Route(ctx, s.ConnId(topic), e); err != nil {
		log.Error().Err(err).Msg("route")
	}
}

// parseTopic extracts the QoS from a topic name of the form
// TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	var qos byte
	if _, err := fmt.Sscanf(s[i+1:], "%d", &qos); err != nil || 2 < qos {
		return s, 0
	}
	return s[:i], qos
}

// Logger adapts a zerolog.Logger for Paho's package loggers
// (paho.ERROR and friends), which log at the given level.
func Logger(log zerolog.Logger, level zerolog.Level) paho.Logger {
	return pahoLogger{log: log, level: level}
}

type pahoLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.log.WithLevel(l.level).Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.log.WithLevel(l.level).Msgf(format, v...)
}
