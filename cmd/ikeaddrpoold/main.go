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

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ikeaddr.io/internal/addresspool"
	"ikeaddr.io/internal/config"
	"ikeaddr.io/internal/logging"
)

func main() {
	logger := logging.Init()

	var (
		port       = flag.Int("port", 7472, "HTTP listening port for Prometheus metrics")
		configFile = flag.String("config", "/etc/ikeaddrpoold/pools.yaml", "path to the pool policy file")
	)
	flag.Parse()

	f, err := os.Open(*configFile)
	if err != nil {
		logger.Log("op", "startup", "error", err, "msg", "failed to open pool policy file")
		os.Exit(1)
	}
	defer f.Close()

	cfg, err := config.Parse(f)
	if err != nil {
		logger.Log("op", "startup", "error", err, "msg", "failed to parse pool policy file")
		os.Exit(1)
	}
	for _, p := range cfg.Pools {
		logger.Log("op", "startup", "pool", p.Name(), "msg", "installed")
		addresspool.PublishStats(p)
	}

	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", *port)
	logger.Log("op", "startup", "addr", addr, "msg", "serving metrics")
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Log("op", "startup", "error", err, "msg", "metrics server exited")
		os.Exit(1)
	}
}
