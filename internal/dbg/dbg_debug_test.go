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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbortPanicsWithMessage(t *testing.T) {
	assert.PanicsWithValue(t, "invariant broken: 42", func() {
		Abort("invariant broken: %d", 42)
	})
}
