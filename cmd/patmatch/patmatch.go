/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package main is a little command-line utility to invoke pattern matching.
//
//   patmatch -p '{"likes":["tacos"]}' -m '{"likes":["tacos","chips"]}'
//
// Patterns and events are JSON or YAML.  An argument that starts with
// '@' names a file to read.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Comcast/evbus/match"
	"github.com/Comcast/evbus/util"

	"github.com/jsccast/yaml"
	"github.com/pkg/errors"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("patmatch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		eventSrc   = fs.String("m", "", "event in JSON or YAML")
		patternSrc = fs.String("p", "", "pattern in JSON or YAML")
		validate   = fs.Bool("validate", false, "only validate the pattern")
		maxDepth   = fs.Int("max-depth", 0, "nesting bound (0 for none)")
		bench      = fs.Int("bench", 0, "number of times to run (and report time)")
		verbose    = fs.Bool("v", false, "verbosity")
	)

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log, _ := util.NewLogger(util.LogConfig{Pretty: true, Output: stderr})

	fail := func(err error) int {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if *patternSrc == "" {
		return fail(errors.New("need a pattern (-p)"))
	}
	pattern, err := parse(*patternSrc)
	if err != nil {
		return fail(errors.Wrap(err, "pattern"))
	}

	m := &match.Matcher{
		MaxDepth: *maxDepth,
	}

	if *validate {
		err := m.Validate(pattern)
		if err != nil && !match.IsRejection(err) {
			return fail(err)
		}
		fmt.Fprintln(stdout, err == nil)
		if err != nil && *verbose {
			fmt.Fprintln(stdout, err)
		}
		return 0
	}

	if *eventSrc == "" {
		return fail(errors.New("need an event (-m)"))
	}
	event, err := parse(*eventSrc)
	if err != nil {
		return fail(errors.Wrap(err, "event"))
	}

	// Matching assumes a valid pattern.
	if err = m.Validate(pattern); err != nil {
		if match.IsRejection(err) {
			err = errors.Wrap(err, "invalid pattern")
		}
		return fail(err)
	}

	if 0 < *bench {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		allocs := stats.TotalAlloc
		then := time.Now()
		for i := 0; i < *bench; i++ {
			if _, err := m.Matches(event, pattern); err != nil {
				return fail(err)
			}
		}
		elapsed := time.Since(then)
		meanNanos := elapsed.Nanoseconds() / int64(*bench)

		runtime.ReadMemStats(&stats)
		allocated := (stats.TotalAlloc - allocs) / uint64(*bench)

		log.Info().
			Int("iterations", *bench).
			Int64("ns", meanNanos).
			Uint64("bytes", allocated).
			Msg("mean per match")
	}

	matched, err := m.Matches(event, pattern)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(stdout, matched)
	if *verbose {
		pjs, _ := match.Marshal(pattern)
		ejs, _ := match.Marshal(event)
		fmt.Fprintf(stdout, "pattern %s\nevent   %s\n", pjs, ejs)
	}
	return 0
}

// parse reads JSON, or YAML if that fails.  An '@' prefix means the
// rest is a filename.
func parse(src string) (match.Value, error) {
	bs := []byte(src)
	if strings.HasPrefix(src, "@") {
		var err error
		if bs, err = os.ReadFile(src[1:]); err != nil {
			return nil, err
		}
	}

	v, err := match.ParseJSON(bs)
	if err == nil {
		return v, nil
	}

	var x interface{}
	if yerr := yaml.Unmarshal(bs, &x); yerr != nil {
		return nil, errors.Wrap(err, "neither JSON nor YAML")
	}
	return match.FromInterface(x)
}
