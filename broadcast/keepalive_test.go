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
	"testing"
	"time"
)

func TestRunKeepAliveBadSchedule(t *testing.T) {
	f := newFixture(t)
	if err := f.s.RunKeepAlive(context.Background(), "every so often"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRunKeepAlive(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		// Every second.
		done <- f.s.RunKeepAlive(ctx, "* * * * * * *")
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if got := f.rec.take("c"); 0 < len(got) {
			if got[0]["Action"] != ActionKeepAlive {
				t.Fatal(got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no keep-alive")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunKeepAlive didn't stop")
	}
}
