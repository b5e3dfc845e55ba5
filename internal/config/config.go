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

// Package config loads the set of address pools a daemon instance
// should have installed at startup.
package config

import (
	"fmt"
	"io"
	"net"

	"gopkg.in/yaml.v3"

	"ikeaddr.io/internal/addresspool"
	purelbv1 "ikeaddr.io/pkg/apis/v1"
)

// PoolPolicy is one pool declaration as read from YAML.
type PoolPolicy struct {
	Name     string `yaml:"name"`
	Range    string `yaml:"range"`
	Reusable bool   `yaml:"reusable"`

	// Within, if set, is a supernet CIDR that Range must fall entirely
	// inside. It catches a mistyped Range before it's ever installed,
	// rather than silently accepting any range that happens to parse.
	Within string `yaml:"within,omitempty"`
}

// file is the on-disk shape: a flat list of pool policies.
type file struct {
	Pools []PoolPolicy `yaml:"pools"`
}

// Config is the parsed, installed result of reading a pool policy
// file: every entry has already been run through
// addresspool.Install, so by the time Parse returns, the registry
// either reflects the whole file or Parse has returned the first
// error encountered and installed none of the remainder.
type Config struct {
	Pools []*addresspool.Pool

	// Reusable records, by pool name, whether leases drawn from that
	// pool should default to the reusable policy. Policy is config,
	// not pool state, so it lives here rather than on addresspool.Pool.
	Reusable map[string]bool
}

// Parse reads a pool policy file from r and installs every pool it
// declares. Overlap detection is not duplicated here: each policy is
// handed to addresspool.Install, which is the single place that
// checks a new range against every already-installed pool. A
// duplicate name with a different range is also rejected, since two
// pools legitimately sharing one range should simply share a name.
func Parse(r io.Reader) (*Config, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{Reusable: map[string]bool{}}
	rangeByName := map[string]string{}
	for _, pol := range f.Pools {
		rng, err := purelbv1.NewIPRange(pol.Range)
		if err != nil {
			return nil, fmt.Errorf("config: pool %q: %w", pol.Name, err)
		}
		if prev, dup := rangeByName[pol.Name]; dup && prev != rng.String() {
			return nil, fmt.Errorf("config: pool %q: declared again with a different range %q", pol.Name, pol.Range)
		}
		rangeByName[pol.Name] = rng.String()
		if err := validateRange(pol, rng); err != nil {
			return nil, fmt.Errorf("config: pool %q: %w", pol.Name, err)
		}

		pool, err := addresspool.Install(pol.Name, rng)
		if err != nil {
			return nil, fmt.Errorf("config: pool %q: %w", pol.Name, err)
		}
		addresspool.Reference(pool)

		cfg.Pools = append(cfg.Pools, pool)
		cfg.Reusable[pol.Name] = pol.Reusable
	}

	return cfg, nil
}

// validateRange enforces the preconditions addresspool.Install itself
// leaves to its caller: the range must exclude the unspecified
// address (0.0.0.0 / ::) and be non-empty, and if the policy names a
// Within supernet, the range must lie entirely inside it.
func validateRange(pol PoolPolicy, rng purelbv1.IPRange) error {
	if rng.Contains(net.IPv4zero) || rng.Contains(net.IPv6unspecified) {
		return fmt.Errorf("range %q includes the unspecified address", pol.Range)
	}
	if !rng.Contains(rng.First()) {
		return fmt.Errorf("range %q is empty", pol.Range)
	}

	if pol.Within == "" {
		return nil
	}
	_, within, err := net.ParseCIDR(pol.Within)
	if err != nil {
		return fmt.Errorf("within %q: %w", pol.Within, err)
	}
	if !rng.ContainedBy(*within) {
		return fmt.Errorf("range %q is not contained by within %q", pol.Range, pol.Within)
	}
	return nil
}
