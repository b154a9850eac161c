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

package main

import (
	"os"
	"time"

	"github.com/Comcast/evbus/match"
	"github.com/Comcast/evbus/registry"
	"github.com/Comcast/evbus/registry/bolt"
	"github.com/Comcast/evbus/registry/postgres"
	"github.com/Comcast/evbus/source/mqtt"
	"github.com/Comcast/evbus/util"

	"github.com/gorhill/cronexpr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// Config is the whole service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// MaxConns bounds simultaneous HTTP connections.  Zero means
	// no bound.
	MaxConns int `yaml:"maxConns"`

	Log       util.LogConfig  `yaml:"log"`
	Registry  RegistryConfig  `yaml:"registry"`
	Match     MatchConfig     `yaml:"match"`
	Hub       HubConfig       `yaml:"hub"`
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// MQTT is optional.
	MQTT *mqtt.Config `yaml:"mqtt"`
}

// RegistryConfig picks a registry backend.
type RegistryConfig struct {
	// Kind is "memory", "bolt", or "postgres".
	Kind string `yaml:"kind"`

	// Filename is the bbolt database file.
	Filename string `yaml:"filename"`

	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`

	// Migrate creates the Postgres tables if needed.
	Migrate bool `yaml:"migrate"`
}

type MatchConfig struct {
	MaxDepth   int  `yaml:"maxDepth"`
	Revalidate bool `yaml:"revalidate"`
}

type HubConfig struct {
	QueueSize    int           `yaml:"queueSize"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type BroadcastConfig struct {
	// Token is required.  Callers of the broadcast endpoint must
	// present it.
	Token    string `yaml:"token"`
	TopicArn string `yaml:"topicArn"`

	// KeepAliveRule is the resource that marks an inbound
	// keep-alive event.
	KeepAliveRule string `yaml:"keepAliveRule"`

	// KeepAlive is a cron expression for sending keep-alives
	// ourselves.  Empty means we don't.
	KeepAlive string `yaml:"keepAlive"`
}

// DefaultConfig is what a config file amends.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		MaxConns: 1024,
		Log: util.LogConfig{
			Level: "info",
		},
		Registry: RegistryConfig{
			Kind:     "memory",
			Filename: "evbus.db",
		},
		Match: MatchConfig{
			MaxDepth: 64,
		},
		Hub: HubConfig{
			QueueSize:    32,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults.  Unknown
// keys are errors.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err = yaml.UnmarshalStrict(bs, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", filename)
	}
	if err = cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "checking %s", filename)
	}
	return cfg, nil
}

// Validate checks what can be checked without opening anything.
func (c *Config) Validate() error {
	switch c.Registry.Kind {
	case "memory":
	case "bolt":
		if c.Registry.Filename == "" {
			return errors.New("bolt registry needs a filename")
		}
	case "postgres":
		if c.Registry.DSN == "" {
			return errors.New("postgres registry needs a dsn")
		}
	default:
		return errors.Errorf("unknown registry kind %q", c.Registry.Kind)
	}
	if c.Broadcast.Token == "" {
		return errors.New("broadcast needs a token")
	}
	if c.Match.MaxDepth < 0 {
		return errors.New("negative maxDepth")
	}
	if expr := c.Broadcast.KeepAlive; expr != "" {
		if _, err := cronexpr.Parse(expr); err != nil {
			return errors.Wrapf(err, "keep-alive schedule %q", expr)
		}
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return errors.New("mqtt needs a broker")
	}
	return nil
}

// Matcher makes the matcher the service uses.
func (c *Config) Matcher() *match.Matcher {
	return &match.Matcher{
		MaxDepth:   c.Match.MaxDepth,
		Revalidate: c.Match.Revalidate,
	}
}

// NewRegistry makes the configured registry, which still needs to be
// opened.
func (c *RegistryConfig) NewRegistry(log zerolog.Logger) (registry.Registry, error) {
	log = log.With().Str("registry", c.Kind).Logger()
	switch c.Kind {
	case "memory":
		return registry.NewMemory(), nil
	case "bolt":
		return bolt.NewStorage(c.Filename, log), nil
	case "postgres":
		s := postgres.NewStorage(c.DSN, log)
		s.Migrate = c.Migrate
		return s, nil
	}
	return nil, errors.Errorf("unknown registry kind %q", c.Kind)
}
