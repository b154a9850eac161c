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

package broadcast

import (
	"bytes"
	"encoding/json"
)

// Action names.  Every message on a subscriber connection is a JSON
// object with an "Action" property.
const (
	ActionHello       = "Hello"
	ActionSubscribe   = "Subscribe"
	ActionUnsubscribe = "Unsubscribe"

	ActionWelcome   = "Welcome"
	ActionAck       = "Ack"
	ActionKeepAlive = "KeepAlive"
	ActionEvent     = "Event"
)

// Ack statuses.
const (
	StatusOk    = "Ok"
	StatusError = "Error"
	StatusGone  = "Gone"
)

// Envelope is enough of an action to see what it is.
type Envelope struct {
	Action string `json:"Action"`
}

// Subscribe asks to register (or replace) a named filter.
type Subscribe struct {
	Action string `json:"Action"`
	Rule   string `json:"Rule"`

	// Pattern is either a JSON string holding the text of the
	// pattern or the pattern itself.
	Pattern json.RawMessage `json:"Pattern"`
}

// PatternText returns the pattern as JSON text.
func (s *Subscribe) PatternText() ([]byte, error) {
	raw := bytes.TrimSpace(s.Pattern)
	if 0 < len(raw) && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return []byte(text), nil
	}
	return raw, nil
}

// Unsubscribe asks to remove a named filter.
type Unsubscribe struct {
	Action string `json:"Action"`
	Rule   string `json:"Rule"`
}

// Ack answers a Subscribe or Unsubscribe.
type Ack struct {
	Action  string `json:"Action"`
	Rule    string `json:"Rule,omitempty"`
	Status  string `json:"Status"`
	Message string `json:"Message,omitempty"`
}

func NewAck(rule, status, msg string) *Ack {
	return &Ack{
		Action:  ActionAck,
		Rule:    rule,
		Status:  status,
		Message: msg,
	}
}

// Event carries an event to a subscriber along with the names of the
// subscriber's rules that matched it.
type Event struct {
	Action string   `json:"Action"`
	Rules  []string `json:"Rules"`
	Source string   `json:"Source"`
	Type   string   `json:"Type"`

	// Event is the JSON text of the event.
	Event string `json:"Event"`
}

var (
	welcome   = []byte(`{"Action":"Welcome"}`)
	keepAlive = []byte(`{"Action":"KeepAlive"}`)
)
