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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comcast/evbus/registry/bolt"
	"github.com/Comcast/evbus/registry/postgres"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, yml string) string {
	filename := filepath.Join(t.TempDir(), "evbus.yaml")
	if err := os.WriteFile(filename, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8080" || cfg.Registry.Kind != "memory" || cfg.MQTT != nil {
		t.Fatalf("%#v", cfg)
	}
	// There's no default token.
	if err = cfg.Validate(); err == nil {
		t.Fatal("validated without a token")
	}
	cfg.Broadcast.Token = "sekret"
	if err = cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	filename := writeConfig(t, `
listen: ":9090"
log:
  level: debug
registry:
  kind: bolt
  filename: /tmp/evbus.db
match:
  maxDepth: 10
  revalidate: true
hub:
  writeTimeout: 3s
broadcast:
  token: sekret
  keepAlive: "0 */5 * * * * *"
mqtt:
  broker: tcp://localhost:1883
  topics: ["evbus/events:1", "evbus/conn/+"]
  routePrefix: evbus/conn/
  keepAlive: 30s
`)
	cfg, err := LoadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.Log.Level != "debug" {
		t.Fatalf("%#v", cfg)
	}
	if cfg.Registry.Kind != "bolt" || cfg.Registry.Filename != "/tmp/evbus.db" {
		t.Fatalf("%#v", cfg.Registry)
	}
	// Defaults survive when not mentioned.
	if cfg.Hub.QueueSize != 32 || cfg.Hub.WriteTimeout != 3*time.Second {
		t.Fatalf("%#v", cfg.Hub)
	}
	m := cfg.Matcher()
	if m.MaxDepth != 10 || !m.Revalidate {
		t.Fatalf("%#v", m)
	}
	if cfg.MQTT == nil || len(cfg.MQTT.Topics) != 2 || cfg.MQTT.KeepAlive != 30*time.Second {
		t.Fatalf("%#v", cfg.MQTT)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "broadcast:\n  token: sekret\n")); err != nil {
		t.Fatal(err)
	}
	for _, yml := range []string{
		"listen: [",
		"lissen: :8080",
		"registry:\n  kind: floppy",
		"registry:\n  kind: postgres",
		"registry:\n  kind: bolt\n  filename: ''",
		"match:\n  maxDepth: -1",
		"mqtt:\n  topics: [events]",
	} {
		yml = "broadcast:\n  token: sekret\n" + yml
		if _, err := LoadConfig(writeConfig(t, yml)); err == nil {
			t.Fatalf("%q should fail", yml)
		}
	}
	for _, yml := range []string{
		"broadcast:\n  token: sekret\n  keepAlive: sometimes",
		"broadcast:\n  topicArn: arn:aws:sns:us-east-1:123:EventTopic",
		"broadcast:\n  token: ''",
	} {
		if _, err := LoadConfig(writeConfig(t, yml)); err == nil {
			t.Fatalf("%q should fail", yml)
		}
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestNewRegistry(t *testing.T) {
	log := zerolog.Nop()

	r, err := (&RegistryConfig{Kind: "bolt", Filename: filepath.Join(t.TempDir(), "r.db")}).NewRegistry(log)
	if err != nil {
		t.Fatal(err)
	}
	if _, is := r.(*bolt.Storage); !is {
		t.Fatalf("%T", r)
	}
	ctx := context.Background()
	if err = r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err = r.Close(ctx); err != nil {
		t.Fatal(err)
	}

	r, err = (&RegistryConfig{Kind: "postgres", DSN: "postgres://localhost/evbus", Migrate: true}).NewRegistry(log)
	if err != nil {
		t.Fatal(err)
	}
	if s, is := r.(*postgres.Storage); !is || !s.Migrate {
		t.Fatalf("%#v", r)
	}

	if _, err = (&RegistryConfig{Kind: "floppy"}).NewRegistry(log); err == nil {
		t.Fatal("expected an error")
	}
}
