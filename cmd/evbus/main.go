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

// Package main is the evbus service.
//
// Clients connect by WebSocket, store event patterns, and receive the
// events that match them.  Events arrive as SNS notifications on
// /broadcast or from an MQTT broker.
//
//   evbus -c evbus.yaml -listen :8080
//
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/evbus/broadcast"
	"github.com/Comcast/evbus/push"
	"github.com/Comcast/evbus/source/mqtt"
	"github.com/Comcast/evbus/util"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
)

func main() {
	var (
		configFile = flag.String("c", "", "YAML config file")

		listen       = flag.String("listen", "", "HTTP listen address (overrides config)")
		registryKind = flag.String("registry", "", "registry: memory, bolt, or postgres (overrides config)")
		token        = flag.String("token", "", "broadcast token (overrides config)")
		logLevel     = flag.String("log-level", "", "log level (overrides config)")
		pretty       = flag.Bool("pretty", false, "human-friendly logging")
	)

	flag.Parse()

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *registryKind != "" {
		cfg.Registry.Kind = *registryKind
	}
	if *token != "" {
		cfg.Broadcast.Token = *token
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *pretty {
		cfg.Log.Pretty = true
	}
	if err = cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := util.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("evbus")
	}
	log.Info().Msg("bye")
}

// NewMux routes the service's endpoints.
func NewMux(s *broadcast.Service, hub *push.Hub, metrics *prometheus.Registry, ui http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/broadcast", s.BroadcastHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	mux.Handle("/", ui)
	return mux
}

func run(ctx context.Context, cfg *Config, log zerolog.Logger) error {
	reg, err := cfg.Registry.NewRegistry(log)
	if err != nil {
		return err
	}
	if err = reg.Open(ctx); err != nil {
		return errors.Wrap(err, "opening registry")
	}
	defer func() {
		if err := reg.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("closing registry")
		}
	}()

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := broadcast.NewService(reg, nil, log)
	s.Matcher = cfg.Matcher()
	s.Metrics = broadcast.NewMetrics(metrics)
	s.Token = cfg.Broadcast.Token
	s.TopicArn = cfg.Broadcast.TopicArn
	s.KeepAliveRule = cfg.Broadcast.KeepAliveRule
	if s.Client, err = broadcast.NewConfirmationClient(); err != nil {
		return err
	}

	hub := push.NewHub(ctx, s, log)
	hub.QueueSize = cfg.Hub.QueueSize
	hub.WriteTimeout = cfg.Hub.WriteTimeout
	s.Pusher = hub

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	if 0 < cfg.MaxConns {
		l = netutil.LimitListener(l, cfg.MaxConns)
	}

	server := &http.Server{
		Handler:           NewMux(s, hub, metrics, NewUI(log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	served := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("serving")
		served <- server.Serve(l)
	}()

	if cfg.MQTT != nil {
		paho.ERROR = mqtt.Logger(log, zerolog.ErrorLevel)
		paho.CRITICAL = mqtt.Logger(log, zerolog.ErrorLevel)
		paho.WARN = mqtt.Logger(log, zerolog.WarnLevel)

		src := mqtt.NewSource(*cfg.MQTT, s, log)
		if err = src.Start(ctx); err != nil {
			server.Close()
			return err
		}
		defer src.Stop()
	}

	if expr := cfg.Broadcast.KeepAlive; expr != "" {
		go func() {
			if err := s.RunKeepAlive(ctx, expr); err != nil {
				log.Error().Err(err).Msg("keep-alive")
			}
		}()
	}

	select {
	case err = <-served:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
