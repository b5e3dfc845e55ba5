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

// Package addresspool implements a single-IP lease allocator: a pool
// of addresses carved from a configured range, leased out one at a
// time to IKE peers, with reuse of a peer's previous lease when its
// identity says that's safe.
package addresspool

import (
	"math"
)

// sentinel terminates every intrusive list in the arena. Index fields
// are always < len(leases) except when they hold this value.
const sentinel = math.MaxUint32

// listEntry is the prev/next pair that lets a lease slot participate
// in an intrusive doubly-linked list by index rather than by address,
// so the backing array can be grown without invalidating the list.
type listEntry struct {
	prev, next uint32
}

// listHead is the head/tail of one intrusive list.
type listHead struct {
	first, last uint32
}

func newListHead() listHead {
	return listHead{first: sentinel, last: sentinel}
}

// entryOf returns the listEntry embedded in the slot at idx, letting
// the four list operations below work identically whether they're
// manipulating the pool's free list or one lease slot's reusable
// bucket chain.
type entryOf func(idx uint32) *listEntry

// append adds idx to the tail of the list. Reusable leases are
// returned to the free list this way on release, so a peer that
// might reclaim its old address is recycled last (see
// Pool.ReleaseLeaseAddr).
func (h *listHead) append(entry entryOf, idx uint32) {
	e := entry(idx)
	e.prev = h.last
	e.next = sentinel
	if h.last != sentinel {
		entry(h.last).next = idx
	} else {
		h.first = idx
	}
	h.last = idx
}

// prepend adds idx to the head of the list. One-time leases are
// returned to the free list this way, so they're recycled promptly.
func (h *listHead) prepend(entry entryOf, idx uint32) {
	e := entry(idx)
	e.next = h.first
	e.prev = sentinel
	if h.first != sentinel {
		entry(h.first).prev = idx
	} else {
		h.last = idx
	}
	h.first = idx
}

// remove unlinks idx from the list. idx's own prev/next are reset to
// sentinel.
func (h *listHead) remove(entry entryOf, idx uint32) {
	e := entry(idx)
	if e.prev != sentinel {
		entry(e.prev).next = e.next
	} else {
		h.first = e.next
	}
	if e.next != sentinel {
		entry(e.next).prev = e.prev
	} else {
		h.last = e.prev
	}
	e.prev, e.next = sentinel, sentinel
}

// head returns the first element of the list, if any.
func (h listHead) head() (idx uint32, ok bool) {
	if h.first == sentinel {
		return 0, false
	}
	return h.first, true
}

// lease is one slot in the arena. Slot i corresponds to address
// range.start + i (see Pool.addressAt).
type lease struct {
	refcount uint32

	// freeEntry is this slot's membership in the pool's free list.
	freeEntry listEntry

	// reusableEntry is this slot's membership in another slot's
	// reusableBucket chain, when reusableName is non-nil.
	reusableEntry listEntry

	// reusableName is the identity fingerprint this lease is bound to.
	// nil means the lease is one-time.
	reusableName []byte

	// reusableBucket is non-empty only when this slot is acting as a
	// hash bucket head: slot[hash(name) mod nrLeases].
	reusableBucket listHead
}

func newLease() lease {
	return lease{
		freeEntry:      listEntry{prev: sentinel, next: sentinel},
		reusableEntry:  listEntry{prev: sentinel, next: sentinel},
		reusableBucket: newListHead(),
	}
}

// hash is the bucket hash: h = 0; h = h*251 + b for each byte of
// name. 251 is prime and close to 256; there is no stronger
// requirement than that.
func hash(name []byte) uint32 {
	var h uint32
	for _, b := range name {
		h = h*251 + uint32(b)
	}
	return h
}

func bucketFor(name []byte, nrLeases int) uint32 {
	return hash(name) % uint32(nrLeases)
}
