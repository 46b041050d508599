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

//go:build !akdebug

// Package dbg centralizes the runtime's invariant-violation abort path:
// debug builds (-tags akdebug) print source location and message before
// panicking; release builds abort silently via os.Exit(2), matching a
// kernel that cannot unwind past a corrupted cthread.
package dbg

import "os"

// Abort terminates the process immediately with no diagnostic output.
// format/args are accepted so call sites are identical across build
// configurations.
func Abort(format string, args ...interface{}) {
	_ = format
	_ = args
	os.Exit(2)
}
