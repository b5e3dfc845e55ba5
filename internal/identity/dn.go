// Copyright 2020 Acnodal Inc.
// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"encoding/asn1"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// wildcardValue is the RDN value that, when matching is wildcard-aware,
// matches any value asserted by the right-hand side.
const wildcardValue = "*"

// ava is a single OID=value Attribute-Value Assertion.
type ava struct {
	Type  string
	Value string
}

// rdn is a Relative Distinguished Name: a set of one or more avas.
type rdn struct {
	AVAs []ava
}

// dn is a Distinguished Name: an ordered sequence of rdns.
type dn struct {
	RDNs []rdn
}

// derAVA and friends mirror ava/rdn/dn in a shape encoding/asn1 can
// marshal directly. This is a correctness-equivalent stand-in for the
// real X.509 Name DER encoding: it round-trips through dnToDER/dnFromDER
// so that sameDN and sameDNAnyOrder can operate on decoded RDNs
// exactly, without requiring a full general-purpose ASN.1 decoder.
type derAVA struct {
	Type  string
	Value string `asn1:"utf8"`
}

type derRDN struct {
	AVAs []derAVA `asn1:"set"`
}

type derName struct {
	RDNs []derRDN `asn1:"sequence"`
}

// dnFromText parses an LDAP/OpenSSL-style textual DN ("CN=Example,O=Acme")
// into our internal rdn/ava representation, using go-ldap's RDN/AVA
// traversal directly rather than round-tripping through DER.
func dnFromText(text string) (dn, error) {
	parsed, err := ldap.ParseDN(text)
	if err != nil {
		return dn{}, fmt.Errorf("malformed DN %q: %w", text, err)
	}

	out := dn{RDNs: make([]rdn, 0, len(parsed.RDNs))}
	for _, prdn := range parsed.RDNs {
		r := rdn{AVAs: make([]ava, 0, len(prdn.Attributes))}
		for _, at := range prdn.Attributes {
			r.AVAs = append(r.AVAs, ava{Type: at.Type, Value: at.Value})
		}
		out.RDNs = append(out.RDNs, r)
	}
	return out, nil
}

// dnToText renders a DN back to its RFC 4514-ish textual form.
func dnToText(d dn) string {
	parts := make([]string, 0, len(d.RDNs))
	for _, r := range d.RDNs {
		avaParts := make([]string, 0, len(r.AVAs))
		for _, a := range r.AVAs {
			avaParts = append(avaParts, a.Type+"="+escapeDNValue(a.Value))
		}
		parts = append(parts, strings.Join(avaParts, "+"))
	}
	return strings.Join(parts, ",")
}

// escapeDNValue escapes the characters RFC 4514 §2.4 requires escaping
// in an AttributeValue's string representation.
func escapeDNValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';', '=':
			b.WriteByte('\\')
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == len(v)-1 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case '#':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dnToDER encodes a DN into its internal DER representation.
func dnToDER(d dn) ([]byte, error) {
	der := derName{RDNs: make([]derRDN, 0, len(d.RDNs))}
	for _, r := range d.RDNs {
		dr := derRDN{AVAs: make([]derAVA, 0, len(r.AVAs))}
		for _, a := range r.AVAs {
			dr.AVAs = append(dr.AVAs, derAVA{Type: a.Type, Value: a.Value})
		}
		der.RDNs = append(der.RDNs, dr)
	}
	return asn1.Marshal(der)
}

// dnFromDER decodes a DN from its internal DER representation. A
// malformed encoding is reported as an error; callers
// performing a match (as opposed to a decode for formatting) must
// treat that error as "not matched" rather than surfacing it.
func dnFromDER(der []byte) (dn, error) {
	var decoded derName
	rest, err := asn1.Unmarshal(der, &decoded)
	if err != nil {
		return dn{}, fmt.Errorf("malformed DER DN: %w", err)
	}
	if len(rest) != 0 {
		return dn{}, fmt.Errorf("malformed DER DN: %d trailing bytes", len(rest))
	}

	out := dn{RDNs: make([]rdn, 0, len(decoded.RDNs))}
	for _, dr := range decoded.RDNs {
		r := rdn{AVAs: make([]ava, 0, len(dr.AVAs))}
		for _, da := range dr.AVAs {
			r.AVAs = append(r.AVAs, ava{Type: da.Type, Value: da.Value})
		}
		out.RDNs = append(out.RDNs, r)
	}
	return out, nil
}

// avaMatches reports whether left can stand in for right: either the
// decoded values are equal, or (when wildcards is true) right's value
// is exactly "*".
func avaMatches(left, right ava, wildcards bool) (matched bool, usedWildcard bool) {
	if left.Type != right.Type {
		return false, false
	}
	if wildcards && right.Value == wildcardValue {
		return true, true
	}
	return left.Value == right.Value, false
}

// rdnMatches reports whether every AVA on the right side finds a
// matching partner on the left side. usedWildcard is true if any
// right-side AVA matched via a wildcard value.
func rdnMatches(left, right rdn, wildcards bool) (matched bool, usedWildcard bool) {
	matches := 0
	for _, rightAVA := range right.AVAs {
		found := false
		for _, leftAVA := range left.AVAs {
			ok, viaWildcard := avaMatches(leftAVA, rightAVA, wildcards)
			if ok {
				found = true
				matches++
				if viaWildcard {
					usedWildcard = true
				}
				break
			}
		}
		if !found {
			return false, false
		}
	}
	return matches == len(right.AVAs), usedWildcard
}

// sameDN compares two DNs in RDN order, the exact-order fast path
// the text form tries first.
func sameDN(left, right dn) bool {
	if len(left.RDNs) != len(right.RDNs) {
		return false
	}
	for i := range right.RDNs {
		if matched, _ := rdnMatches(left.RDNs[i], right.RDNs[i], false); !matched {
			return false
		}
	}
	return true
}

// sameDNAnyOrder is the unordered RDN-permutation fallback, optionally
// wildcard-aware. It returns whether every match succeeded and how
// many RDNs matched via a wildcard value.
func sameDNAnyOrder(left, right dn, wildcards bool) (matched bool, wildcardCount int) {
	if len(left.RDNs) == 0 || len(right.RDNs) == 0 || len(left.RDNs) != len(right.RDNs) {
		return false, 0
	}

	used := make([]bool, len(left.RDNs))
	for _, rightRDN := range right.RDNs {
		found := false
		for i, leftRDN := range left.RDNs {
			if used[i] {
				continue
			}
			ok, viaWildcard := rdnMatches(leftRDN, rightRDN, wildcards)
			if ok {
				used[i] = true
				found = true
				if viaWildcard {
					wildcardCount++
				}
				break
			}
		}
		if !found {
			return false, 0
		}
	}
	return true, wildcardCount
}

// countWildcardRDNs counts the RDNs in d that assert a bare "*" value
// on any AVA, used by CountWildcards for DN identities.
func countWildcardRDNs(d dn) int {
	count := 0
	for _, r := range d.RDNs {
		for _, a := range r.AVAs {
			if a.Value == wildcardValue {
				count++
				break
			}
		}
	}
	return count
}
