// Copyright 2020 Acnodal Inc.
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

// Same reports whether a and b are the same identity. Either side
// being None is a wildcard match. DN comparison (including FromCert,
// which carries a resolved certificate Subject's DER bytes once a
// peer has authenticated, and is treated as a DN here) accepts
// byte-identical encodings outright, then tries the exact-RDN-order
// comparison and falls back to the unordered permutation match.
//
// Once Kind equality is already established above, a Null identity
// always matches another Null identity unconditionally; see DESIGN.md
// for why no further field comparison applies to that arm.
func Same(a, b Value) bool {
	if a.Kind == None || b.Kind == None {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case Null:
		return true
	case IPv4Addr, IPv6Addr:
		return a.IP.Equal(b.IP)
	case FQDN, UserFQDN:
		return normalizeFQDN(a.Name) == normalizeFQDN(b.Name)
	case DERASN1DN, FromCert:
		return sameDNBytes(a.Name, b.Name)
	case KeyID:
		return equalBytes(a.Name, b.Name)
	default:
		return false
	}
}

// sameDNBytes reports byte-identical encodings (including two empty
// ones, as in an unresolved FromCert) as equal without decoding.
// Otherwise it decodes both sides and compares them, trying the
// exact-order path first and falling back to the unordered
// permutation match. A decode failure on either side
// means "not matched", not an error.
func sameDNBytes(a, b []byte) bool {
	if equalBytes(a, b) {
		return true
	}
	left, err := dnFromDER(a)
	if err != nil {
		return false
	}
	right, err := dnFromDER(b)
	if err != nil {
		return false
	}
	if sameDN(left, right) {
		return true
	}
	matched, _ := sameDNAnyOrder(left, right, false)
	return matched
}

// Match performs a wildcard-aware comparison of a candidate identity
// against a pattern, returning whether it matched and how many
// wildcard positions were used. A None pattern matches anything with
// the maximum wildcard count. Kind mismatches never match.
func Match(pattern, candidate Value) (matched bool, wildcards uint) {
	if pattern.Kind == None {
		return true, MaxWildcards
	}
	if pattern.Kind != candidate.Kind {
		return false, 0
	}

	if pattern.Kind == DERASN1DN || pattern.Kind == FromCert {
		// The pattern is the right-hand side: a "*" value is only
		// honoured there (see avaMatches).
		left, err := dnFromDER(candidate.Name)
		if err != nil {
			return false, 0
		}
		right, err := dnFromDER(pattern.Name)
		if err != nil {
			return false, 0
		}
		matched, count := sameDNAnyOrder(left, right, true)
		return matched, uint(count)
	}

	return Same(pattern, candidate), 0
}

// CountWildcards reports how many wildcard positions id contains: the
// maximum for None, the count of "*"-valued RDNs for a DN, and zero
// for everything else.
func CountWildcards(id Value) uint {
	switch id.Kind {
	case None:
		return MaxWildcards
	case DERASN1DN, FromCert:
		parsed, err := dnFromDER(id.Name)
		if err != nil {
			return 0
		}
		return uint(countWildcardRDNs(parsed))
	default:
		return 0
	}
}
