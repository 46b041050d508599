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

//go:build akdebug

package dbg

import (
	"fmt"
	"os"
	"runtime"
)

// Abort reports an invariant violation at the caller's source location
// and panics. Debug builds (-tags akdebug) are verbose so violations are
// diagnosable in development; release builds call os.Exit(2) instead (see
// dbg_release.go).
func Abort(format string, args ...interface{}) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "???", 0
	}
	fmt.Fprintf(os.Stderr, "akrun: %s:%d: %s\n", file, line, fmt.Sprintf(format, args...))
	panic(fmt.Sprintf(format, args...))
}
