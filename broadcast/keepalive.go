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
	"context"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/pkg/errors"
)

// RunKeepAlive calls KeepAlive on the schedule given by the cron
// expression (see github.com/gorhill/cronexpr) until the context is
// done.
//
// An expression that can't be parsed is an error right away.
func (s *Service) RunKeepAlive(ctx context.Context, expr string) error {
	c, err := cronexpr.Parse(expr)
	if err != nil {
		return errors.Wrapf(err, "keep-alive schedule %q", expr)
	}

	for {
		next := c.Next(time.Now())
		if next.IsZero() {
			s.Log.Info().Str("expr", expr).Msg("keep-alive schedule is exhausted")
			return nil
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if err := s.KeepAlive(ctx); err != nil {
			s.Log.Error().Err(err).Msg("keep-alive")
		}
	}
}
