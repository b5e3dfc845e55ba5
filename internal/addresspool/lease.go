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
	"net"
)

// LeaseAnAddress acquires an address from p for the peer identified by
// fingerprint. reusable selects which of two policies governs how the
// lease is returned to the free list on release:
//
//   - reusable == false: the lease is one-time. It is prepended to the
//     free list on release and recycled promptly.
//   - reusable == true: the lease is bound to fingerprint. Before
//     taking a fresh slot, the pool first walks fingerprint's hash
//     bucket looking for a slot already bound to the same fingerprint.
//     A hit already held by another connection (refcount > 0) is
//     shared, so simultaneous connections from one identity end up on
//     one address; a hit that is lingering (refcount == 0) is
//     reclaimed instead of consuming a new slot. On eventual release a
//     reusable lease is appended to the free list rather than
//     prepended, so it lingers at the tail and has a chance to be
//     reclaimed by the same peer later.
//
// A nil fingerprint is only valid with reusable == false.
func (p *Pool) LeaseAnAddress(fingerprint []byte, reusable bool) (net.IP, error) {
	if reusable && len(p.leases) > 0 {
		if idx, ok := p.findLingering(fingerprint); ok {
			return p.bindAndTake(idx, fingerprint, reusable), nil
		}
	}

	if _, ok := p.freeList.head(); !ok {
		if err := p.grow(); err != nil {
			RecordAllocationRejected(p.name, "exhausted")
			return nil, err
		}
	}

	idx, ok := p.freeList.head()
	if !ok {
		RecordAllocationRejected(p.name, "exhausted")
		return nil, errPoolExhausted()
	}

	return p.bindAndTake(idx, fingerprint, reusable), nil
}

// findLingering walks fingerprint's hash bucket for a slot already
// bound to fingerprint, whether it is still held by another
// connection (refcount > 0, to be shared) or lingering on the free
// list after its last holder released it (refcount == 0, to be
// reclaimed). bindAndTake tells the two cases apart and only touches
// free-list/nrInUse bookkeeping for the lingering one.
func (p *Pool) findLingering(fingerprint []byte) (idx uint32, ok bool) {
	bucket := bucketFor(fingerprint, len(p.leases))
	head := p.leases[bucket].reusableBucket
	for cur, present := head.head(); present; {
		if equalFingerprint(p.leases[cur].reusableName, fingerprint) {
			return cur, true
		}
		next := p.leases[cur].reusableEntry.next
		if next == sentinel {
			break
		}
		cur = next
	}
	return 0, false
}

func equalFingerprint(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bindAndTake finalizes acquisition of slot idx: any slot with
// refcount == 0 (a lingering findLingering hit or a slot read from
// the free list head) is, by the free-list-conservation invariant,
// necessarily still linked into the free list, so it is unlinked
// here; callers do not unlink it themselves. bindAndTake then binds
// or clears the slot's reusable name, raises its refcount, and
// returns its address.
func (p *Pool) bindAndTake(idx uint32, fingerprint []byte, reusable bool) net.IP {
	lingering := p.leases[idx].refcount == 0
	if lingering {
		p.freeList.remove(p.freeEntryOf, idx)
	}

	current := p.leases[idx].reusableName
	switch {
	case reusable && current == nil:
		p.rebindReusable(idx, fingerprint)
	case reusable && !equalFingerprint(current, fingerprint):
		// The slot was reusable-bound to a different, now-abandoned
		// identity (a steal from the free list, not a findLingering
		// hit for this same fingerprint): unlink it from that
		// identity's bucket chain before binding it to the new one.
		p.unbindReusable(idx)
		p.rebindReusable(idx, fingerprint)
	case !reusable && current != nil:
		p.unbindReusable(idx)
	}

	if lingering {
		p.nrInUse++
	}
	p.leases[idx].refcount++

	return p.addressAt(idx)
}

// rebindReusable binds slot idx to fingerprint and links it into
// fingerprint's hash bucket chain.
func (p *Pool) rebindReusable(idx uint32, fingerprint []byte) {
	name := make([]byte, len(fingerprint))
	copy(name, fingerprint)
	p.leases[idx].reusableName = name

	bucket := bucketFor(name, len(p.leases))
	p.leases[bucket].reusableBucket.append(p.reusableEntryOf, idx)
	p.nrReusable++
}

// unbindReusable unlinks slot idx from whatever hash bucket it is in
// and clears its reusable name, returning the slot to one-time
// status. Called when a slot that used to be reusable is taken as a
// one-time lease, or before it is rebound to a different fingerprint.
func (p *Pool) unbindReusable(idx uint32) {
	bucket := bucketFor(p.leases[idx].reusableName, len(p.leases))
	p.leases[bucket].reusableBucket.remove(p.reusableEntryOf, idx)
	p.leases[idx].reusableName = nil
	p.nrReusable--
}

// ReleaseLeaseAddr releases the lease for addr back to p. It is the
// caller's responsibility to track, per peer, whether it currently
// holds a lease at all; releasing an address the pool didn't actually
// have leased out is a programmer error and panics.
func (p *Pool) ReleaseLeaseAddr(addr net.IP) {
	idx, ok := p.ipRange.IndexOf(addr)
	if !ok || idx >= uint32(len(p.leases)) {
		panic("addresspool: release of address outside the pool's materialized arena")
	}
	l := &p.leases[idx]
	if l.refcount == 0 {
		panic("addresspool: release of a lease that was not held")
	}

	l.refcount--
	if l.refcount > 0 {
		return
	}

	p.nrInUse--
	if l.reusableName != nil {
		p.freeList.append(p.freeEntryOf, idx)
	} else {
		p.freeList.prepend(p.freeEntryOf, idx)
	}
}
