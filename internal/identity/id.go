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

// Package identity implements the IKE peer identity value from RFC
// 2407 DOI §4.6.2.1: a tagged union over certificate subjects, IP
// addresses, DNS/user FQDNs, key IDs and X.509 distinguished names,
// with textual parsing, formatting, equality and wildcard matching.
package identity

import (
	"bytes"
	"net"
	"strings"
)

// Kind tags which variant of the identity union a Value holds.
type Kind int

const (
	// FromCert means "take the Subject from the peer's certificate at
	// authentication time." Parse never populates a Name for it: it
	// starts out carrying no fields of its own, and the authentication
	// step that resolves the certificate is expected to set Name to the
	// Subject's raw ASN.1 DER encoding, the same representation
	// DERASN1DN uses, before the Value is compared against anything.
	FromCert Kind = iota
	// None is the wildcard/unspecified identity.
	None
	// Null is the RFC 7619 NULL authentication identity.
	Null
	// IPv4Addr identities carry an IP field.
	IPv4Addr
	// IPv6Addr identities carry an IP field.
	IPv6Addr
	// FQDN identities carry a Name field holding a DNS-style name with
	// no leading '@'.
	FQDN
	// UserFQDN identities carry a Name field holding "user@domain",
	// with the '@' retained per DOI §4.6.2.4.
	UserFQDN
	// DERASN1DN identities carry a Name field holding the raw ASN.1 DER
	// encoding of an X.509 Distinguished Name.
	DERASN1DN
	// KeyID identities carry an opaque binary Name field.
	KeyID
)

func (k Kind) String() string {
	switch k {
	case FromCert:
		return "FromCert"
	case None:
		return "None"
	case Null:
		return "Null"
	case IPv4Addr:
		return "IPv4Addr"
	case IPv6Addr:
		return "IPv6Addr"
	case FQDN:
		return "FQDN"
	case UserFQDN:
		return "UserFQDN"
	case DERASN1DN:
		return "DERASN1DN"
	case KeyID:
		return "KeyID"
	default:
		return "unknown"
	}
}

// MaxWildcards is the wildcard count returned for a None identity (by
// Match for a None pattern, and by CountWildcards); it outranks any
// finite count of wildcard RDNs that a DN match reports.
const MaxWildcards = ^uint(0)

// Value is an IKE peer identity. Which of IP and Name is meaningful
// depends on Kind; see DESIGN.md for why this project didn't split
// Value into one Go type per Kind.
//
// Name may alias memory owned by the caller (when a caller builds a
// Value around its own slice) until Unshare is called, at which point
// it becomes an owned copy. Callers must track which state a Value is
// in themselves. Go's garbage collector reclaims the bytes, so Free
// only clears the fields; it is kept so the exposed collaborator
// surface matches an IKE identification payload.
type Value struct {
	Kind Kind
	IP   net.IP
	Name []byte
}

// Any returns the None (wildcard) identity.
func Any() Value {
	return Value{Kind: None}
}

// Duplicate returns a deep copy of id: the IP and Name are copied so
// that mutating or freeing the original cannot affect the copy.
func (id Value) Duplicate() Value {
	out := Value{Kind: id.Kind}
	if id.IP != nil {
		out.IP = append(net.IP(nil), id.IP...)
	}
	if id.Name != nil {
		out.Name = append([]byte(nil), id.Name...)
	}
	return out
}

// Unshare replaces any borrowed Name bytes with an owned copy. It is
// idempotent: calling it twice is harmless.
func (id *Value) Unshare() {
	if id.Name != nil {
		id.Name = append([]byte(nil), id.Name...)
	}
}

// Free releases id's owned storage. After Free, id must not be used
// except to be overwritten or discarded.
func (id *Value) Free() {
	id.Name = nil
	id.IP = nil
}

// IsReusableCandidate reports whether id's Kind is distinctive enough
// to safely recover a lease for: None, Null and bare IP literals are
// excluded, since any number of peers can present them. Callers still
// need to combine this with their own policy over authentication
// method (no PSK, no NULL auth) and the daemon-wide uniqueIDs setting
// before deciding the reusable argument to addresspool.LeaseAnAddress.
func (id Value) IsReusableCandidate() bool {
	switch id.Kind {
	case None, Null, IPv4Addr, IPv6Addr:
		return false
	default:
		return true
	}
}

// Fingerprint returns the byte string used to key a reusable lease to
// this identity, for use as the fingerprint argument to
// addresspool.LeaseAnAddress. It is simply Format, re-encoded as
// bytes, since the lease hash treats it as an opaque byte string.
func (id Value) Fingerprint() []byte {
	return []byte(Format(id))
}

// equalBytes names the plain byte comparison compare.go uses for
// KeyID identities, which must match exactly with no normalization.
func equalBytes(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// normalizeFQDN strips trailing '.' characters and lower-cases, the
// normalization Same applies before comparing FQDN/UserFQDN names.
func normalizeFQDN(name []byte) string {
	return strings.ToLower(strings.TrimRight(string(name), "."))
}
