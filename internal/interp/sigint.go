// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package interp

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

var sigintFlag atomic.Bool

// WatchSIGINT arranges for a host SIGINT to set a flag the run loop polls
// between instructions, rather than killing the process outright: "may set a flag that the run loop checks between instructions to
// enter the debugger." Call it once at startup; it runs until the process
// exits.
func WatchSIGINT() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go func() {
		for range ch {
			sigintFlag.Store(true)
		}
	}()
}

func sigintRequested() bool {
	return sigintFlag.CompareAndSwap(true, false)
}
