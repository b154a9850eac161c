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
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// MaxBodySize limits what the broadcast endpoint will read.
var MaxBodySize int64 = 1 << 20

// topicMessage is the part of an SNS notification or subscription
// confirmation that we use.
type topicMessage struct {
	Type         string  `json:"Type"`
	TopicArn     string  `json:"TopicArn"`
	SubscribeURL string  `json:"SubscribeURL"`
	Message      *string `json:"Message"`
}

// NewConfirmationClient makes the client that confirms topic
// subscriptions.
func NewConfirmationClient() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
	}, nil
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func badRequest(w http.ResponseWriter) {
	reply(w, http.StatusBadRequest, "Bad Request")
}

// BroadcastHandler accepts topic notifications carrying events.
//
// The request must be a POST.  The "token" query parameter must match
// Token, and the "ws" parameter names the connection to dispatch to.
// Without "ws", the event goes to every subscribed connection.
//
// Every request is refused when Token is empty.  Subscription
// confirmations are refused unless TopicArn is set.
func (s *Service) BroadcastHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	connId := q.Get("ws")
	log := s.Log.With().Str("conn", connId).Logger()

	log.Info().Str("path", r.URL.Path).Msg("message received")

	if r.Method != http.MethodPost {
		log.Info().Str("method", r.Method).Msg("unsupported request")
		badRequest(w)
		return
	}

	if s.Token == "" {
		log.Warn().Msg("no broadcast token configured")
		badRequest(w)
		return
	}

	if subtle.ConstantTimeCompare([]byte(q.Get("token")), []byte(s.Token)) != 1 {
		log.Warn().Msg("bad token")
		badRequest(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		log.Warn().Err(err).Msg("can't read body")
		badRequest(w)
		return
	}

	var m topicMessage
	if err = json.Unmarshal(body, &m); err != nil {
		log.Warn().Err(err).Msg("can't parse body")
		badRequest(w)
		return
	}

	if m.Type == "SubscriptionConfirmation" {
		if s.TopicArn == "" {
			log.Warn().Str("received", m.TopicArn).Msg("no topic configured for subscription confirmation")
			badRequest(w)
			return
		}
		if m.TopicArn != s.TopicArn {
			log.Warn().Str("expected", s.TopicArn).Str("received", m.TopicArn).
				Msg("wrong topic for subscription confirmation")
			badRequest(w)
			return
		}
		if err = s.confirm(r, m.SubscribeURL); err != nil {
			log.Warn().Err(err).Msg("subscription confirmation failed")
			badRequest(w)
			return
		}
		if connId != "" {
			s.deliver(ctx, connId, welcome)
		}
		reply(w, http.StatusOK, "Confirmed")
		return
	}

	if m.Message == nil {
		log.Warn().Str("body", string(body)).Msg("invalid topic message")
		badRequest(w)
		return
	}

	e, err := ParseEvent([]byte(*m.Message))
	if err != nil {
		log.Info().Err(err).Msg("invalid event")
		badRequest(w)
		return
	}

	if err = s.Route(ctx, connId, e); err != nil {
		log.Error().Err(err).Msg("route")
		badRequest(w)
		return
	}
	reply(w, http.StatusOK, "Ok")
}

func (s *Service) confirm(r *http.Request, url string) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
