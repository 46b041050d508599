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

package iouring

// Additional IORING_OP_* opcodes beyond the subset already declared in
// iouring.go, needed by ioring's Path/xattr/Socket/Buffer op groups
// (spec.md §6.1). Values match the stable kernel io_uring ABI
// (include/uapi/linux/io_uring.h).
const (
	IORING_OP_OPENAT          = 18
	IORING_OP_STATX           = 21
	IORING_OP_PROVIDE_BUFFERS = 31
	IORING_OP_REMOVE_BUFFERS  = 32
	IORING_OP_SHUTDOWN        = 34
	IORING_OP_MKDIRAT         = 37
	IORING_OP_FGETXATTR       = 43
	IORING_OP_GETXATTR        = 44
	IORING_OP_SOCKET          = 45
)
