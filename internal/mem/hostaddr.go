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

package mem

import "unsafe"

// hostAddr returns the host pointer value backing b's first byte. Callers
// only ever read/write through it while the Segment (and thus b) is kept
// alive by Mem.segments, so the usual escape-analysis caveats around
// unsafe.Pointer<->uintptr round trips don't apply here: the slice header
// itself, not just this derived address, is retained for the segment's
// lifetime.
func hostAddr(b []byte) uintptr {
	if len(b) == 0 {
		return IllegalAddress
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
