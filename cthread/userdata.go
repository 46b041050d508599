/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cthread

import "unsafe"

// UserData returns a stable identity for t suitable for stamping into an
// SQE's user-data field (the I/O adapter's "user_data = promise_pointer"
// step, spec §4.5). The cthread stays reachable via the runtime's
// all-tasks list for its whole lifetime, so the round trip through
// TaskFromUserData is safe: the object this points to cannot be moved
// or collected while the value is outstanding in the ring.
func UserData(t *Task) uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}

// TaskFromUserData reverses UserData, recovering the cthread a completed
// SQE belongs to from its CQE's user-data field.
func TaskFromUserData(p uint64) *Task {
	return (*Task)(unsafe.Pointer(uintptr(p)))
}
