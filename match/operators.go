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

package match

import (
	"net/netip"
	"strconv"
	"strings"
)

// Content filter operators.
const (
	OpPrefix      = "prefix"
	OpAnythingBut = "anything-but"
	OpNumeric     = "numeric"
	OpCIDR        = "cidr"
	OpExists      = "exists"
)

// isComparison reports whether the value is one of the numeric
// comparison operators.
func isComparison(v Value) bool {
	s, is := v.(String)
	if !is {
		return false
	}
	switch s {
	case "<", "<=", "=", ">=", ">":
		return true
	}
	return false
}

// compare evaluates "x op y".  The second result is false for an
// unknown operator.
func compare(op string, x, y float64) (bool, bool) {
	switch op {
	case "<":
		return x < y, true
	case "<=":
		return x <= y, true
	case "=":
		return x == y, true
	case ">=":
		return x >= y, true
	case ">":
		return x > y, true
	}
	return false, false
}

// comparisons extracts the (operator, threshold) pairs from a numeric
// operand.  The second result is false unless the operand is a
// two- or four-element array of alternating operators and numbers.
func comparisons(operand Value) ([]comparison, bool) {
	xs, is := operand.(Array)
	if !is {
		return nil, false
	}
	if len(xs) != 2 && len(xs) != 4 {
		return nil, false
	}
	acc := make([]comparison, 0, 2)
	for i := 0; i < len(xs); i += 2 {
		if !isComparison(xs[i]) {
			return nil, false
		}
		n, is := xs[i+1].(Number)
		if !is {
			return nil, false
		}
		acc = append(acc, comparison{
			op:        string(xs[i].(String)),
			threshold: float64(n),
		})
	}
	return acc, true
}

type comparison struct {
	op        string
	threshold float64
}

// parseOctets parses a dotted-quad IPv4 address.  Each octet is a
// decimal no greater than 255.  Leading zeros are allowed and don't
// make the octet octal.
func parseOctets(s string) ([4]byte, bool) {
	var acc [4]byte
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return acc, false
	}
	for i, part := range parts {
		n, ok := decimal(part, 3)
		if !ok || 255 < n {
			return acc, false
		}
		acc[i] = byte(n)
	}
	return acc, true
}

// parseCIDR parses "A.B.C.D/N" with 0 <= N < 32.  The returned prefix
// is masked.
//
// A /32 is rejected even though it's conventional notation for a
// single host.
func parseCIDR(s string) (netip.Prefix, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return netip.Prefix{}, false
	}
	bits, ok := decimal(parts[1], 2)
	if !ok || 32 <= bits {
		return netip.Prefix{}, false
	}
	octets, ok := parseOctets(parts[0])
	if !ok {
		return netip.Prefix{}, false
	}
	p, err := netip.AddrFrom4(octets).Prefix(bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return p, true
}

// inCIDR reports whether the dotted quad lies within the prefix.
// Anything that isn't a dotted quad is simply not within.
func inCIDR(ip string, p netip.Prefix) bool {
	octets, ok := parseOctets(ip)
	if !ok {
		return false
	}
	return p.Contains(netip.AddrFrom4(octets))
}

// decimal parses an unsigned decimal of at most max digits, not
// counting leading zeros.
func decimal(s string, max int) (int, bool) {
	if s == "" {
		return 0, false
	}
	if t := strings.TrimLeft(s, "0"); max < len(t) {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || '9' < s[i] {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
