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
	"github.com/Comcast/evbus/match"

	"github.com/pkg/errors"
)

// ErrInvalidEvent is the cause of every ParseEvent error.
var ErrInvalidEvent = errors.New("invalid event")

// CloudEvent is a CloudWatch-style event.
type CloudEvent struct {
	Source     string
	DetailType string
	Resources  []string

	// Doc is the whole event, which is what patterns match.
	Doc *match.Object

	// Text is the event as received.
	Text string
}

// ParseEvent parses an event.  The event must be a JSON object with
// string "source" and "detail-type" properties and a "resources" list
// of strings.
func ParseEvent(bs []byte) (*CloudEvent, error) {
	v, err := match.ParseJSON(bs)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidEvent, err.Error())
	}
	doc, is := v.(*match.Object)
	if !is {
		return nil, errors.Wrap(ErrInvalidEvent, "not an object")
	}

	e := &CloudEvent{
		Doc:  doc,
		Text: string(bs),
	}

	str := func(k string) (string, error) {
		x, have := doc.Get(k)
		if !have {
			return "", errors.Wrapf(ErrInvalidEvent, "missing %q", k)
		}
		s, is := x.(match.String)
		if !is {
			return "", errors.Wrapf(ErrInvalidEvent, "%q isn't a string", k)
		}
		return string(s), nil
	}

	if e.Source, err = str("source"); err != nil {
		return nil, err
	}
	if e.DetailType, err = str("detail-type"); err != nil {
		return nil, err
	}

	x, have := doc.Get("resources")
	if !have {
		return nil, errors.Wrap(ErrInvalidEvent, `missing "resources"`)
	}
	rs, is := x.(match.Array)
	if !is {
		return nil, errors.Wrap(ErrInvalidEvent, `"resources" isn't a list`)
	}
	e.Resources = make([]string, 0, len(rs))
	for _, r := range rs {
		s, is := r.(match.String)
		if !is {
			return nil, errors.Wrap(ErrInvalidEvent, `"resources" has a non-string`)
		}
		e.Resources = append(e.Resources, string(s))
	}

	return e, nil
}

// IsKeepAlive reports whether the event is a scheduled keep-alive.
// When rule isn't empty, the event's only resource must be that rule.
func (e *CloudEvent) IsKeepAlive(rule string) bool {
	if e.Source != "aws.events" || e.DetailType != "Scheduled Event" {
		return false
	}
	if len(e.Resources) != 1 {
		return false
	}
	return rule == "" || e.Resources[0] == rule
}
