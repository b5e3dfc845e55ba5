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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikeaddr.io/internal/identity"
	purelbv1 "ikeaddr.io/pkg/apis/v1"
)

func mustRange(t *testing.T, cidr string) purelbv1.IPRange {
	t.Helper()
	r, err := purelbv1.NewIPRange(cidr)
	require.NoError(t, err)
	return r
}

func TestMain(m *testing.M) {
	m.Run()
}

func newTestPool(t *testing.T, cidr string) *Pool {
	t.Helper()
	resetRegistry()
	p, err := Install("test", mustRange(t, cidr))
	require.NoError(t, err)
	return p
}

func TestExhaustionAfterRangeIsFullyLeased(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/30") // .0, .1, .2, .3 usable as a 4-address range

	for i := 0; i < 4; i++ {
		_, err := p.LeaseAnAddress(nil, false)
		require.NoError(t, err)
	}

	_, err := p.LeaseAnAddress(nil, false)
	assert.Error(t, err)
	var poolErr *Error
	assert.ErrorAs(t, err, &poolErr)
	assert.Equal(t, ErrPoolExhausted, poolErr.Kind)
}

func TestReleaseThenLeaseRecoversOneTimeAddress(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/30")

	addr, err := p.LeaseAnAddress(nil, false)
	require.NoError(t, err)
	p.ReleaseLeaseAddr(addr)

	// Drain the rest of the range; the recycled address must be among
	// what comes back out, since the pool never grows past its size.
	seen := map[string]bool{addr.String(): false}
	for i := 0; i < 4; i++ {
		got, err := p.LeaseAnAddress(nil, false)
		require.NoError(t, err)
		if got.Equal(addr) {
			seen[addr.String()] = true
		}
	}
	assert.True(t, seen[addr.String()], "released one-time address should be recycled")
}

func TestReleasedReusableLeaseIsReclaimedByAnotherIdentityBeforeTheSamePeerReturns(t *testing.T) {
	// Three addresses, so after three leases no never-used slot is left
	// on the free list ahead of the lingering ones.
	p := newTestPool(t, "192.0.2.0-192.0.2.2")

	a := []byte("peer-a")
	b := []byte("peer-b")
	c := []byte("peer-c")

	addrA, err := p.LeaseAnAddress(a, true)
	require.NoError(t, err)
	addrB, err := p.LeaseAnAddress(b, true)
	require.NoError(t, err)
	addrC, err := p.LeaseAnAddress(c, true)
	require.NoError(t, err)

	p.ReleaseLeaseAddr(addrA)
	p.ReleaseLeaseAddr(addrB)
	p.ReleaseLeaseAddr(addrC)

	require.Equal(t, uint32(3), p.Reusable())

	// A brand new identity takes the earliest-released lingering
	// lease, since reusable releases append to the free list tail and
	// acquisition always takes from the head.
	d := []byte("peer-d")
	addrD, err := p.LeaseAnAddress(d, true)
	require.NoError(t, err)
	assert.True(t, addrD.Equal(addrA))

	// peer-a's fingerprint no longer owns any lease; peer-a returning
	// now gets a fresh slot, not its old address back.
	addrANew, err := p.LeaseAnAddress(a, true)
	require.NoError(t, err)
	assert.False(t, addrANew.Equal(addrA))
}

func TestReusablePeerReclaimsItsOwnLingeringLease(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/29")

	peer := []byte("peer-a")
	addr, err := p.LeaseAnAddress(peer, true)
	require.NoError(t, err)
	p.ReleaseLeaseAddr(addr)

	again, err := p.LeaseAnAddress(peer, true)
	require.NoError(t, err)
	assert.True(t, again.Equal(addr))
	assert.Equal(t, uint32(1), p.InUse())
	assert.Equal(t, uint32(1), p.Reusable())
}

func TestConcurrentHoldersOfOneIdentityShareTheSameAddress(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/29")

	peer := []byte("peer-a")
	first, err := p.LeaseAnAddress(peer, true)
	require.NoError(t, err)

	// A second simultaneous connection from the same identity, before
	// the first ever releases, must be handed the same address rather
	// than minting a second reusable slot for one identity.
	second, err := p.LeaseAnAddress(peer, true)
	require.NoError(t, err)
	assert.True(t, second.Equal(first))
	assert.Equal(t, uint32(1), p.Reusable())
	assert.Equal(t, uint32(1), p.InUse())

	p.ReleaseLeaseAddr(first)
	assert.Equal(t, uint32(1), p.InUse(), "still held by the second connection")

	p.ReleaseLeaseAddr(second)
	assert.Equal(t, uint32(0), p.InUse())
	assert.Equal(t, uint32(1), p.Reusable(), "released lease lingers, still bound to peer-a")
}

func TestInUsePlusFreeEqualsMaterializedLeaseCount(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/28")

	var addrs []net.IP
	for i := 0; i < 5; i++ {
		addr, err := p.LeaseAnAddress(nil, false)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	assert.Equal(t, p.NrLeases(), p.InUse()+p.freeCount())

	p.ReleaseLeaseAddr(addrs[0])
	p.ReleaseLeaseAddr(addrs[1])
	assert.Equal(t, p.NrLeases(), p.InUse()+p.freeCount())
}

func TestBucketChainsSurviveArenaGrowth(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/24")

	var held []net.IP
	var names [][]byte
	for i := 0; i < 20; i++ {
		name := []byte{byte('a' + i)}
		addr, err := p.LeaseAnAddress(name, true)
		require.NoError(t, err)
		held = append(held, addr)
		names = append(names, name)
	}
	require.Greater(t, p.NrLeases(), uint32(20-1))

	for i := range held {
		p.ReleaseLeaseAddr(held[i])
	}
	for i := range names {
		addr, err := p.LeaseAnAddress(names[i], true)
		require.NoError(t, err)
		assert.True(t, addr.Equal(held[i]), "identity %d should reclaim its lingering lease across a grow", i)
	}
}

func TestInstallRejectsPartialOverlap(t *testing.T) {
	resetRegistry()
	_, err := Install("a", mustRange(t, "192.0.2.0/24"))
	require.NoError(t, err)

	_, err = Install("b", mustRange(t, "192.0.2.128/24"))
	assert.Error(t, err)
	var poolErr *Error
	assert.ErrorAs(t, err, &poolErr)
	assert.Equal(t, ErrPoolOverlap, poolErr.Kind)

	// The registry is unchanged: a disjoint range still installs fine.
	_, err = Install("c", mustRange(t, "198.51.100.0/24"))
	assert.NoError(t, err)
}

func TestFingerprintFromIdentityDrivesReuse(t *testing.T) {
	p := newTestPool(t, "192.0.2.0/29")

	peer, err := identity.Parse("@vpn-client.example", false)
	require.NoError(t, err)
	require.True(t, peer.IsReusableCandidate())

	addr, err := p.LeaseAnAddress(peer.Fingerprint(), true)
	require.NoError(t, err)
	p.ReleaseLeaseAddr(addr)

	again, err := p.LeaseAnAddress(peer.Fingerprint(), true)
	require.NoError(t, err)
	assert.True(t, again.Equal(addr))
}

func TestInstallReusesExactDuplicateRange(t *testing.T) {
	resetRegistry()
	first, err := Install("a", mustRange(t, "192.0.2.0/24"))
	require.NoError(t, err)

	second, err := Install("a-again", mustRange(t, "192.0.2.0/24"))
	require.NoError(t, err)
	assert.Same(t, first, second)
}
