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
	"fmt"
	"net"

	purelbv1 "ikeaddr.io/pkg/apis/v1"
)

// Pool is a lease allocator over a single contiguous IP range. Slot i
// of leases corresponds to address ipRange.AddressAt(i).
type Pool struct {
	name    string
	ipRange purelbv1.IPRange

	// size is the range's address count, saturated to math.MaxUint32
	// and flagged truncated if the true count overflows uint32 (only
	// possible for IPV6 ranges).
	size      uint32
	truncated bool

	leases   []lease
	freeList listHead
	nrInUse  uint32
	nrReusable uint32

	refcount uint32

	// next links this pool into the package-level registry.
	next *Pool
}

func newPool(name string, r purelbv1.IPRange) *Pool {
	size, truncated := r.SizeUint32()
	return &Pool{
		name:      name,
		ipRange:   r,
		size:      size,
		truncated: truncated,
		freeList:  newListHead(),
	}
}

// Name returns the pool's configured name.
func (p *Pool) Name() string { return p.name }

// Range returns the pool's configured IP range.
func (p *Pool) Range() purelbv1.IPRange { return p.ipRange }

// Size returns the number of addresses the pool's range holds.
func (p *Pool) Size() uint32 { return p.size }

// Truncated reports whether Size() was saturated because the range's
// true size didn't fit in a uint32 (an oversized IPV6 range).
func (p *Pool) Truncated() bool { return p.truncated }

// NrLeases returns the number of lease slots currently materialized
// in the arena (<= Size()).
func (p *Pool) NrLeases() uint32 { return uint32(len(p.leases)) }

// InUse returns the number of leases currently held by a connection.
func (p *Pool) InUse() uint32 { return p.nrInUse }

// Reusable returns the number of leases currently bound to an
// identity fingerprint (whether held or lingering in the free list).
func (p *Pool) Reusable() uint32 { return p.nrReusable }

// freeCount returns the number of slots on the free list, derived
// rather than tracked so it can't drift: invariant §3 requires
// freeCount + nrInUse == nrLeases.
func (p *Pool) freeCount() uint32 {
	return uint32(len(p.leases)) - p.nrInUse
}

func (p *Pool) freeEntryOf(idx uint32) *listEntry   { return &p.leases[idx].freeEntry }
func (p *Pool) reusableEntryOf(idx uint32) *listEntry { return &p.leases[idx].reusableEntry }

// addressAt returns the address assigned to lease slot idx, computed
// as range.start + idx using network-order arithmetic on the last 4
// octets.
func (p *Pool) addressAt(idx uint32) net.IP {
	return p.ipRange.AddressAt(idx)
}

// grow is called when the free list is
// empty and a new lease slot is needed. It fails with ErrPoolExhausted
// if the arena already covers the whole range.
func (p *Pool) grow() error {
	oldNr := len(p.leases)
	if uint32(oldNr) == p.size {
		return errPoolExhausted()
	}

	newNr := oldNr * 2
	if newNr == 0 {
		newNr = 1
	}
	if uint32(newNr) > p.size {
		newNr = int(p.size)
	}

	grown := make([]lease, newNr)
	copy(grown, p.leases)
	for i := oldNr; i < newNr; i++ {
		grown[i] = newLease()
	}
	p.leases = grown

	// The resize invalidates every bucket chain: slot indices are the
	// same, but hash(name) mod nrLeases now maps to different heads.
	// Reset every slot's bucket-head and chain-membership pointers,
	// then rebuild the chains by re-hashing each slot that still holds
	// a reusable name.
	for i := range p.leases {
		p.leases[i].reusableBucket = newListHead()
		p.leases[i].reusableEntry = listEntry{prev: sentinel, next: sentinel}
	}
	for i := 0; i < oldNr; i++ {
		if p.leases[i].reusableName != nil {
			bucket := bucketFor(p.leases[i].reusableName, len(p.leases))
			p.leases[bucket].reusableBucket.append(p.reusableEntryOf, uint32(i))
		}
	}

	// Newly appended slots start out free, prepended so the lowest
	// new index is recycled first.
	for i := newNr - 1; i >= oldNr; i-- {
		p.freeList.prepend(p.freeEntryOf, uint32(i))
	}

	return nil
}

func (p *Pool) String() string {
	return fmt.Sprintf("pool %q %s (size=%d leases=%d inUse=%d reusable=%d refcount=%d)",
		p.name, p.ipRange, p.size, len(p.leases), p.nrInUse, p.nrReusable, p.refcount)
}
