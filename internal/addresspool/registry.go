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

package addresspool

import (
	purelbv1 "ikeaddr.io/pkg/apis/v1"
)

// registryHead is the process-wide, singly-linked list of installed
// pools. It is process-wide state precisely because pool install and
// teardown are driven by connection-configuration events that the
// caller already serializes. There is
// deliberately no mutex here; a caller that drives this package from
// more than one goroutine must add its own.
var registryHead *Pool

// Find scans the registry for a pool matching r:
//   - an exact match on both endpoints returns the existing pool
//     (to be reused rather than duplicated);
//   - a range strictly before or strictly after an existing pool's
//     range is fine and scanning continues;
//   - anything else is a partial overlap, an error.
//
// A nil, nil return means no existing pool covers r and none
// conflicts with it.
func Find(r purelbv1.IPRange) (*Pool, error) {
	for p := registryHead; p != nil; p = p.next {
		if sameRange(p.ipRange, r) {
			return p, nil
		}
		if strictlyOutside(p.ipRange, r) {
			continue
		}
		return nil, errPoolOverlap()
	}
	return nil, nil
}

// sameRange reports exact endpoint equality. IPRange has no dedicated
// comparison of its own, but its String() renders both endpoints, so
// comparing the rendering is exact and order-independent of family.
func sameRange(a, b purelbv1.IPRange) bool {
	return a.String() == b.String()
}

// strictlyOutside reports whether candidate lies entirely before or
// entirely after existing, with no addresses in common.
func strictlyOutside(existing, candidate purelbv1.IPRange) bool {
	return !existing.Overlaps(candidate)
}

// Install installs a pool covering r, reusing an existing identical
// pool if one is already registered. It is the caller's
// responsibility to ensure r excludes the unspecified address and is
// non-empty.
func Install(name string, r purelbv1.IPRange) (*Pool, error) {
	existing, err := Find(r)
	if err != nil {
		RecordAllocationRejected(name, "overlap")
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	p := newPool(name, r)
	p.next = registryHead
	registryHead = p
	return p, nil
}

// Reference increments p's reference count. Callers hold a reference
// for as long as any connection configuration refers to p's range.
func Reference(p *Pool) {
	p.refcount++
}

// Unreference decrements p's reference count, unlinking and freeing
// the pool's entire lease arena when the count drops to zero.
func Unreference(p *Pool) {
	p.refcount--
	if p.refcount > 0 {
		return
	}

	if registryHead == p {
		registryHead = p.next
	} else {
		for cur := registryHead; cur != nil; cur = cur.next {
			if cur.next == p {
				cur.next = p.next
				break
			}
		}
	}

	for i := range p.leases {
		p.leases[i].reusableName = nil
	}
	p.leases = nil
}

// resetRegistry clears the process-wide registry. It exists for tests;
// production code has no equivalent, since pools are torn down one at
// a time via Unreference as connection configuration changes.
func resetRegistry() {
	registryHead = nil
}
