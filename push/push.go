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

// Package push delivers payloads to subscriber connections.
package push

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrGone means the destination connection no longer exists.
	ErrGone = errors.New("connection gone")

	// ErrBlocked means the connection's outbound queue is full.
	ErrBlocked = errors.New("connection blocked")
)

// Pusher sends a payload to a connection.
type Pusher interface {
	Push(ctx context.Context, id string, payload []byte) error
}

// Status is the outcome of a delivery.
type Status int

const (
	Delivered Status = iota
	Gone
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Deliver pushes the payload and reports what happened.
//
// A connection that's gone is not worth complaining about: subscribers
// come and go.  Other failures are logged as warnings.  Either way the
// caller carries on.
func Deliver(ctx context.Context, p Pusher, log zerolog.Logger, id string, payload []byte) Status {
	err := p.Push(ctx, id, payload)
	if err == nil {
		return Delivered
	}
	if errors.Cause(err) == ErrGone {
		log.Debug().Str("conn", id).Msg("push to departed connection")
		return Gone
	}
	log.Warn().Err(err).Str("conn", id).Msg("push failed")
	return Failed
}
