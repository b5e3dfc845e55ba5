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
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// Parse parses a textual IKE identity, per the disambiguation rules
// of the identity grammar below. oeOnly restricts the accepted
// forms the way opportunistic-encryption configuration does: the
// %fromcert/%none/%null sentinels and the DN, KeyID and literal-DN
// forms are all unavailable in that mode.
//
// The returned Value's Name (when present) is a fresh copy that does
// not alias text's storage, so calling Unshare on it is harmless but
// not needed.
func Parse(text string, oeOnly bool) (Value, error) {
	if !oeOnly {
		switch text {
		case "%fromcert":
			return Value{Kind: FromCert}, nil
		case "%none":
			return Value{Kind: None}, nil
		case "%null":
			return Value{Kind: Null}, nil
		}
	}

	if !oeOnly && strings.Contains(text, "=") {
		return parseDN(text)
	}

	if !strings.Contains(text, "@") {
		return parseAddressForm(text)
	}

	if strings.HasPrefix(text, "@") {
		return parseAtForm(text, oeOnly)
	}

	// UserFQDN: the '@' is retained.
	return Value{Kind: UserFQDN, Name: []byte(text)}, nil
}

// parseDN handles step 4: an optional leading '@' is stripped and the
// remainder is parsed as an LDAP/OpenSSL textual DN.
func parseDN(text string) (Value, error) {
	rest := strings.TrimPrefix(text, "@")
	parsed, err := dnFromText(rest)
	if err != nil {
		return Value{}, parseError(text, err)
	}
	der, err := dnToDER(parsed)
	if err != nil {
		return Value{}, parseError(text, err)
	}
	return Value{Kind: DERASN1DN, Name: der}, nil
}

// parseAddressForm handles step 5: text with no '@'.
func parseAddressForm(text string) (Value, error) {
	if text == "%any" || text == "0.0.0.0" {
		return Value{Kind: None}, nil
	}

	ip := net.ParseIP(text)
	if ip == nil {
		return Value{}, parseError(text, fmt.Errorf("not a valid IP address"))
	}

	if strings.Contains(text, ":") {
		return Value{Kind: IPv6Addr, IP: ip}, nil
	}
	return Value{Kind: IPv4Addr, IP: ip}, nil
}

// parseAtForm handles step 6's "text begins with '@'" branch.
func parseAtForm(text string, oeOnly bool) (Value, error) {
	switch {
	case !oeOnly && strings.HasPrefix(text, "@#"):
		raw := text[len("@#"):]
		raw = strings.TrimPrefix(raw, "0x")
		raw = strings.TrimPrefix(raw, "0X")
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return Value{}, parseError(text, fmt.Errorf("invalid hex key id: %w", err))
		}
		return Value{Kind: KeyID, Name: decoded}, nil

	case !oeOnly && strings.HasPrefix(text, "@~"):
		raw := text[len("@~"):]
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return Value{}, parseError(text, fmt.Errorf("invalid hex DN: %w", err))
		}
		// The bytes are stored as given; they are only decoded lazily by
		// the DN matcher (see compare.go), which treats a malformed
		// encoding as "not matched" rather than an error, unless the
		// other side is byte-identical.
		return Value{Kind: DERASN1DN, Name: decoded}, nil

	case !oeOnly && strings.HasPrefix(text, "@["):
		literal := strings.TrimPrefix(text, "@[")
		literal = strings.TrimSuffix(literal, "]")
		return Value{Kind: KeyID, Name: []byte(literal)}, nil

	default:
		return Value{Kind: FQDN, Name: []byte(strings.TrimPrefix(text, "@"))}, nil
	}
}
