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

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSentinels(t *testing.T) {
	id, err := Parse("%fromcert", false)
	assert.NoError(t, err)
	assert.Equal(t, FromCert, id.Kind)

	id, err = Parse("%none", false)
	assert.NoError(t, err)
	assert.Equal(t, None, id.Kind)

	id, err = Parse("%null", false)
	assert.NoError(t, err)
	assert.Equal(t, Null, id.Kind)

	id, err = Parse("%any", false)
	assert.NoError(t, err)
	assert.Equal(t, None, id.Kind)

	id, err = Parse("0.0.0.0", false)
	assert.NoError(t, err)
	assert.Equal(t, None, id.Kind)
}

func TestParseSentinelsRejectedInOEMode(t *testing.T) {
	// Not recognized as a sentinel in OE mode, so "%fromcert" falls
	// through to step 5 (no '@'), is tried as an IP literal, and fails.
	_, err := Parse("%fromcert", true)
	assert.Error(t, err)
}

func TestParseIPLiterals(t *testing.T) {
	id, err := Parse("192.0.2.1", false)
	assert.NoError(t, err)
	assert.Equal(t, IPv4Addr, id.Kind)
	assert.True(t, net.ParseIP("192.0.2.1").Equal(id.IP))

	id, err = Parse("2001:db8::1", false)
	assert.NoError(t, err)
	assert.Equal(t, IPv6Addr, id.Kind)
	assert.True(t, net.ParseIP("2001:db8::1").Equal(id.IP))

	_, err = Parse("not-an-ip", false)
	assert.Error(t, err)
}

func TestParseFQDNForms(t *testing.T) {
	id, err := Parse("@foo.example", false)
	assert.NoError(t, err)
	assert.Equal(t, FQDN, id.Kind)
	assert.Equal(t, "foo.example", string(id.Name))

	id, err = Parse("user@example", false)
	assert.NoError(t, err)
	assert.Equal(t, UserFQDN, id.Kind)
	assert.Equal(t, "user@example", string(id.Name))
}

func TestParseKeyIDHex(t *testing.T) {
	id, err := Parse("@#0xdeadbeef", false)
	assert.NoError(t, err)
	assert.Equal(t, KeyID, id.Kind)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, id.Name)
}

func TestParseKeyIDLiteral(t *testing.T) {
	id, err := Parse("@[raw key]", false)
	assert.NoError(t, err)
	assert.Equal(t, KeyID, id.Kind)
	assert.Equal(t, "raw key", string(id.Name))

	// Only one trailing ']' is stripped, so an extra one is preserved
	// as part of the literal.
	id, err = Parse("@[raw key]]", false)
	assert.NoError(t, err)
	assert.Equal(t, KeyID, id.Kind)
	assert.Equal(t, "raw key]", string(id.Name))
}

func TestParseDNText(t *testing.T) {
	id, err := Parse("CN=Example,O=Acme", false)
	assert.NoError(t, err)
	assert.Equal(t, DERASN1DN, id.Kind)
	assert.Equal(t, "CN=Example,O=Acme", Format(id))

	// An optional leading '@' is stripped before parsing as a DN.
	id2, err := Parse("@CN=Example,O=Acme", false)
	assert.NoError(t, err)
	assert.Equal(t, DERASN1DN, id2.Kind)
	assert.Equal(t, Format(id), Format(id2))
}

func TestParseOEOnlyRestrictsForms(t *testing.T) {
	// The sentinels and DN-via-'=' are unavailable in
	// opportunistic-encryption mode; "CN=Example" has no '@' so it
	// falls through to the address form, where it isn't a valid IP.
	_, err := Parse("CN=Example", true)
	assert.Error(t, err)

	// The '@#' and '@~' forms are restricted in OE mode, so they fall
	// through to the default FQDN case instead of being recognized as
	// KeyID/DN hex.
	id, err := Parse("@#0xdeadbeef", true)
	assert.NoError(t, err)
	assert.Equal(t, FQDN, id.Kind)
	assert.Equal(t, "#0xdeadbeef", string(id.Name))

	id, err = Parse("@[raw key]", true)
	assert.NoError(t, err)
	assert.Equal(t, FQDN, id.Kind, "OE mode falls through to FQDN since '[' has no special meaning there")
}

// TestRoundTripCanonicalForms checks that for every
// identity produced by parsing a canonical text form, parsing the
// formatted output reproduces the same identity.
func TestRoundTripCanonicalForms(t *testing.T) {
	texts := []string{
		"192.0.2.1",
		"2001:db8::1",
		"@foo.example",
		"user@example",
		"CN=Example,O=Acme",
		"@#0xdeadbeef",
	}

	for _, text := range texts {
		id, err := Parse(text, false)
		if !assert.NoError(t, err, text) {
			continue
		}
		again, err := Parse(Format(id), false)
		assert.NoError(t, err, text)
		assert.True(t, Same(id, again), "round trip of %q: %q -> %q", text, Format(id), Format(again))
	}
}
