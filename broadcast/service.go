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

// Package broadcast routes events to the subscriber connections whose
// stored patterns match them.
//
// A subscriber opens a connection (see push.Hub), says Hello to join
// the event stream, and registers named patterns with Subscribe.  An
// inbound event is evaluated against each of a connection's patterns,
// and the connection receives one Event action naming every rule that
// matched.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Comcast/evbus/match"
	"github.com/Comcast/evbus/push"
	"github.com/Comcast/evbus/registry"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Service struct {
	Log      zerolog.Logger
	Registry registry.Registry
	Pusher   push.Pusher
	Matcher  *match.Matcher
	Metrics  *Metrics

	// KeepAliveRule, if not empty, is the only resource a keep-alive
	// event may name.
	KeepAliveRule string

	// Token must be presented by HTTP callers.  The broadcast
	// endpoint refuses everything while it's empty.
	Token string

	// TopicArn is the topic whose subscription confirmations are
	// accepted.  With no topic, no confirmation is accepted.
	TopicArn string

	// Client confirms topic subscriptions.
	Client *http.Client
}

// NewService makes a Service with an unregistered set of metrics and
// the default matcher.
func NewService(reg registry.Registry, p push.Pusher, log zerolog.Logger) *Service {
	return &Service{
		Log:      log,
		Registry: reg,
		Pusher:   p,
		Matcher:  match.DefaultMatcher,
		Metrics:  NewMetrics(nil),
	}
}

func (s *Service) deliver(ctx context.Context, id string, payload []byte) push.Status {
	status := push.Deliver(ctx, s.Pusher, s.Log, id, payload)
	s.Metrics.delivered(status)
	return status
}

func (s *Service) send(ctx context.Context, id string, x interface{}) push.Status {
	js, err := json.Marshal(x)
	if err != nil {
		s.Log.Error().Err(err).Str("conn", id).Msg("can't serialize action")
		return push.Failed
	}
	return s.deliver(ctx, id, js)
}

// Connect registers a new connection.  The request must have an "app"
// query parameter that's a UUID.
func (s *Service) Connect(ctx context.Context, id string, r *http.Request) error {
	s.Log.Info().Str("conn", id).Msg("connected")

	appId := r.URL.Query().Get("app")
	if _, err := uuid.Parse(appId); err != nil {
		return errors.New("missing or invalid app id")
	}

	c := &registry.Connection{
		Id:      id,
		AppId:   appId,
		Created: time.Now().UTC(),
	}
	if err := s.Registry.PutConnection(ctx, c); err != nil {
		s.Log.Error().Err(err).Str("conn", id).Msg("can't store connection")
		return errors.New("internal error")
	}
	s.Metrics.Connections.Inc()
	return nil
}

// Disconnect forgets a connection and its filters.
func (s *Service) Disconnect(ctx context.Context, id string) {
	s.Log.Info().Str("conn", id).Msg("disconnected")

	removed, err := s.Registry.RemConnection(ctx, id)
	if err != nil {
		s.Log.Error().Err(err).Str("conn", id).Msg("can't remove connection")
		return
	}
	if !removed {
		s.Log.Info().Str("conn", id).Msg("connection was already removed")
		return
	}
	s.Metrics.Connections.Dec()
}

// Message dispatches an action from a subscriber.
func (s *Service) Message(ctx context.Context, id string, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.send(ctx, id, NewAck("", StatusError, "can't parse action: "+err.Error()))
		return
	}

	switch env.Action {
	case ActionHello:
		if err := s.Hello(ctx, id); err != nil {
			s.Log.Error().Err(err).Str("conn", id).Msg("Hello")
		}
	case ActionSubscribe:
		var a Subscribe
		if err := json.Unmarshal(msg, &a); err != nil {
			s.send(ctx, id, NewAck("", StatusError, "can't parse action: "+err.Error()))
			return
		}
		s.send(ctx, id, s.Subscribe(ctx, id, &a))
	case ActionUnsubscribe:
		var a Unsubscribe
		if err := json.Unmarshal(msg, &a); err != nil {
			s.send(ctx, id, NewAck("", StatusError, "can't parse action: "+err.Error()))
			return
		}
		s.send(ctx, id, s.Unsubscribe(ctx, id, &a))
	default:
		s.Log.Info().Str("conn", id).Str("action", env.Action).Msg("unsupported action")
		s.send(ctx, id, NewAck("", StatusError, "unsupported action"))
	}
}

// Hello subscribes the connection to the event stream and welcomes
// it.
func (s *Service) Hello(ctx context.Context, id string) error {
	s.Log.Info().Str("conn", id).Msg("Hello")

	c, err := s.Registry.GetConnection(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		s.Log.Info().Str("conn", id).Msg("connection was removed")
		return nil
	}
	c.Subscribed = true
	if err = s.Registry.PutConnection(ctx, c); err != nil {
		return err
	}
	s.deliver(ctx, id, welcome)
	return nil
}

// Subscribe validates and stores a filter.  Nothing is stored unless
// the resulting Ack is Ok.
func (s *Service) Subscribe(ctx context.Context, id string, a *Subscribe) *Ack {
	s.Log.Info().Str("conn", id).Str("rule", a.Rule).Msg("Subscribe")

	if a.Rule == "" {
		return NewAck("", StatusError, "Missing or invalid rule name")
	}

	text, err := a.PatternText()
	if err != nil {
		return NewAck(a.Rule, StatusError, "Invalid pattern: "+err.Error())
	}
	p, err := match.ParseJSON(text)
	if err != nil {
		return NewAck(a.Rule, StatusError, "Invalid pattern: "+err.Error())
	}
	if err = s.Matcher.Validate(p); err != nil {
		if !match.IsRejection(err) {
			s.Log.Warn().Err(err).Str("conn", id).Str("rule", a.Rule).Msg("pattern fault")
		}
		return NewAck(a.Rule, StatusError, "Invalid pattern: "+err.Error())
	}
	canonical, err := match.Marshal(p)
	if err != nil {
		return NewAck(a.Rule, StatusError, "Invalid pattern: "+err.Error())
	}

	c, err := s.Registry.GetConnection(ctx, id)
	if err != nil {
		s.Log.Error().Err(err).Str("conn", id).Msg("can't get connection")
		return NewAck(a.Rule, StatusError, "internal error")
	}
	if c == nil {
		s.Log.Info().Str("conn", id).Msg("connection was removed")
		return NewAck(a.Rule, StatusGone, "")
	}

	f := &registry.Filter{
		ConnectionId: id,
		Rule:         a.Rule,
		Pattern:      string(canonical),
	}
	if err = s.Registry.PutFilter(ctx, f); err != nil {
		if errors.Cause(err) == registry.ErrNoConnection {
			return NewAck(a.Rule, StatusGone, "")
		}
		s.Log.Error().Err(err).Str("conn", id).Msg("can't store filter")
		return NewAck(a.Rule, StatusError, "internal error")
	}
	return NewAck(a.Rule, StatusOk, "")
}

// Unsubscribe removes a filter.
func (s *Service) Unsubscribe(ctx context.Context, id string, a *Unsubscribe) *Ack {
	s.Log.Info().Str("conn", id).Str("rule", a.Rule).Msg("Unsubscribe")

	if a.Rule != "" {
		if err := s.Registry.RemFilter(ctx, id, a.Rule); err != nil {
			s.Log.Error().Err(err).Str("conn", id).Msg("can't remove filter")
			return NewAck(a.Rule, StatusError, "internal error")
		}
	}
	return NewAck(a.Rule, StatusOk, "")
}

// Route handles an inbound event.  A keep-alive is passed on as a
// KeepAlive action.  Any other event is dispatched to the given
// connection, or to every subscribed connection if connId is empty.
func (s *Service) Route(ctx context.Context, connId string, e *CloudEvent) error {
	if e.IsKeepAlive(s.KeepAliveRule) {
		if connId == "" {
			return s.KeepAlive(ctx)
		}
		s.deliver(ctx, connId, keepAlive)
		return nil
	}

	s.Metrics.EventsReceived.Inc()

	if connId != "" {
		_, err := s.Dispatch(ctx, connId, e)
		return err
	}

	cs, err := s.Registry.Connections(ctx)
	if err != nil {
		return err
	}
	for _, c := range cs {
		if !c.Subscribed {
			continue
		}
		if _, err := s.Dispatch(ctx, c.Id, e); err != nil {
			s.Log.Error().Err(err).Str("conn", c.Id).Msg("dispatch")
		}
	}
	return nil
}

// Dispatch evaluates the connection's filters against the event.  If
// any match, the connection gets one Event action that lists them.
//
// Every stored pattern is validated before it's used.  A pattern that
// fails, or that faults on this event, is logged and skipped.
func (s *Service) Dispatch(ctx context.Context, connId string, e *CloudEvent) ([]string, error) {
	fs, err := s.Registry.GetFilters(ctx, connId)
	if err != nil {
		return nil, err
	}

	log := s.Log.With().Str("conn", connId).Logger()

	var matched []string
	for _, f := range fs {
		ok, err := s.evaluate(f, e)
		if err != nil {
			if match.IsRejection(err) {
				s.Metrics.evaluated(ResultInvalid)
				log.Warn().Err(err).Str("rule", f.Rule).Msg("stored pattern is invalid")
			} else {
				s.Metrics.evaluated(ResultFault)
				log.Warn().Err(err).Str("rule", f.Rule).Msg("evaluation fault")
			}
			continue
		}
		if !ok {
			s.Metrics.evaluated(ResultNoMatch)
			continue
		}
		s.Metrics.evaluated(ResultMatch)
		matched = append(matched, f.Rule)
	}

	if len(matched) == 0 {
		return nil, nil
	}

	log.Debug().Strs("rules", matched).Msg("sending event")
	s.send(ctx, connId, &Event{
		Action: ActionEvent,
		Rules:  matched,
		Source: e.Source,
		Type:   e.DetailType,
		Event:  e.Text,
	})
	return matched, nil
}

func (s *Service) evaluate(f *registry.Filter, e *CloudEvent) (bool, error) {
	v, err := match.ParseJSON([]byte(f.Pattern))
	if err != nil {
		return false, &match.Rejected{Reason: "stored pattern isn't JSON: " + err.Error()}
	}
	if err = s.Matcher.Validate(v); err != nil {
		return false, err
	}
	return s.Matcher.IsPatternMatch(e.Doc, v.(*match.Object))
}

// KeepAlive sends a KeepAlive action to every subscribed connection.
func (s *Service) KeepAlive(ctx context.Context) error {
	cs, err := s.Registry.Connections(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, c := range cs {
		if c.Subscribed {
			s.deliver(ctx, c.Id, keepAlive)
			n++
		}
	}
	s.Log.Debug().Int("n", n).Msg("keep-alive")
	return nil
}
