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
	"encoding/hex"
	"fmt"
)

// Format renders id as printable ASCII, per the mapping in
// the identity grammar.
func Format(id Value) string {
	switch id.Kind {
	case FromCert:
		return "%fromcert"
	case None:
		return "(none)"
	case Null:
		return "ID_NULL"
	case IPv4Addr, IPv6Addr:
		if id.IP == nil || id.IP.IsUnspecified() {
			return "%any"
		}
		return id.IP.String()
	case FQDN:
		return "@" + string(id.Name)
	case UserFQDN:
		return string(id.Name)
	case DERASN1DN:
		parsed, err := dnFromDER(id.Name)
		if err != nil {
			// A DN we can't decode still has to render as something; fall
			// back to the raw hex form rather than panicking.
			return "@~" + hex.EncodeToString(id.Name)
		}
		return dnToText(parsed)
	case KeyID:
		return fmt.Sprintf("@#0x%s", hex.EncodeToString(id.Name))
	default:
		return "(unknown)"
	}
}
