// Copyright 2017 Google Inc.
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

// Package logging sets up structured logging in a uniform way for the
// daemon and its core packages.
package logging

import (
	"os"

	"github.com/go-kit/log"
)

// Provided by ldflags during build
var (
	release string
	commit  string
	branch  string
)

// Init returns a logger configured with common settings like
// timestamping and source code locations.
//
// Init must be called as early as possible in main(), before any
// application-specific flag parsing or logging occurs.
//
// Init has no failure path: it always returns a usable logger.
func Init() log.Logger {
	l := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	l.Log("release", release, "commit", commit, "git-branch", branch, "msg", "starting")

	return l
}
