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

package ioring

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/internal/hack"
	"github.com/cloudwego/akrun/internal/iouring"
)

// Nop submits a no-op SQE; useful for exercising the suspend/resume path
// and as a scheduler liveness probe in tests.
func (r *Ring) Nop(self *cthread.Task) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_NOP
	})
}

// Read reads into buf from fd at the given offset (File group, §6.1).
func (r *Ring) Read(self *cthread.Task, fd int32, buf []byte, off uint64) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_READ
		sqe.Fd = fd
		sqe.Off = off
		sqe.Len = uint32(len(buf))
		if len(buf) > 0 {
			sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
		}
	})
}

// Write writes buf to fd at the given offset (File group, §6.1).
func (r *Ring) Write(self *cthread.Task, fd int32, buf []byte, off uint64) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_WRITE
		sqe.Fd = fd
		sqe.Off = off
		sqe.Len = uint32(len(buf))
		if len(buf) > 0 {
			sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
		}
	})
}

// CloseFd closes fd (File group, §6.1). Named CloseFd rather than
// Close to avoid colliding with Ring.Close, which tears down the ring
// itself (ring.go).
func (r *Ring) CloseFd(self *cthread.Task, fd int32) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_CLOSE
		sqe.Fd = fd
	})
}

// Socket creates a socket (Socket group, §6.1).
func (r *Ring) Socket(self *cthread.Task, domain, typ, proto int32) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_SOCKET
		sqe.Fd = domain
		sqe.Off = uint64(typ)
		sqe.Len = uint32(proto)
	})
}

// Bind and Listen have no stable prep_* entry in the io_uring version
// this adapter targets (they are very recent additions and many
// production io_uring servers still issue them as plain syscalls,
// reserving the ring for operations that actually benefit from async
// completion). They never suspend the caller.
func (r *Ring) Bind(fd int32, sa unix.Sockaddr) error {
	return unix.Bind(int(fd), sa)
}

func (r *Ring) Listen(fd int32, backlog int) error {
	return unix.Listen(int(fd), backlog)
}

// Accept accepts a connection on the listening socket fd (Socket group).
func (r *Ring) Accept(self *cthread.Task, fd int32) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_ACCEPT
		sqe.Fd = fd
	})
}

// Connect connects fd to the address described by addr/addrlen (Socket
// group). addr must outlive the call (stack-allocated sockaddr storage
// from the caller, matching the kernel ABI's pointer-by-reference).
func (r *Ring) Connect(self *cthread.Task, fd int32, addr unsafe.Pointer, addrlen uint64) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_CONNECT
		sqe.Fd = fd
		sqe.Addr = uint64(uintptr(addr))
		sqe.Off = addrlen
	})
}

// Send sends buf on the connected socket fd (Socket group).
func (r *Ring) Send(self *cthread.Task, fd int32, buf []byte, flags uint32) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_SEND
		sqe.Fd = fd
		sqe.Len = uint32(len(buf))
		sqe.OpcodeFlags = flags
		if len(buf) > 0 {
			sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
		}
	})
}

// Recv receives into buf from the connected socket fd (Socket group).
func (r *Ring) Recv(self *cthread.Task, fd int32, buf []byte, flags uint32) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_RECV
		sqe.Fd = fd
		sqe.Len = uint32(len(buf))
		sqe.OpcodeFlags = flags
		if len(buf) > 0 {
			sqe.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
		}
	})
}

// Timeout suspends the caller until ts elapses (Timers & Control group).
func (r *Ring) Timeout(self *cthread.Task, ts *iouring.TimeSpec) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_TIMEOUT
		sqe.Addr = uint64(uintptr(unsafe.Pointer(ts)))
		sqe.Len = 1
	})
}

// Cancel requests cancellation of the in-flight operation identified by
// targetUserData (Timers & Control group).
func (r *Ring) Cancel(self *cthread.Task, targetUserData uint64) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_ASYNC_CANCEL
		sqe.Addr = targetUserData
	})
}

// PollAdd arms a poll for the given event mask on fd (Polling group).
func (r *Ring) PollAdd(self *cthread.Task, fd int32, mask uint32) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_POLL_ADD
		sqe.Fd = fd
		sqe.OpcodeFlags = mask
	})
}

// OpenAt opens path relative to dirfd (Path group). path is converted
// with internal/hack's zero-copy helper since the kernel only reads it.
func (r *Ring) OpenAt(self *cthread.Task, dirfd int32, path string, flags uint32, mode uint32) int32 {
	b := hack.StringToByteSlice(path + "\x00")
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_OPENAT
		sqe.Fd = dirfd
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&b[0])))
		sqe.Len = mode
		sqe.OpcodeFlags = flags
	})
}

// Mkdirat creates a directory relative to dirfd (Path group).
func (r *Ring) Mkdirat(self *cthread.Task, dirfd int32, path string, mode uint32) int32 {
	b := hack.StringToByteSlice(path + "\x00")
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_MKDIRAT
		sqe.Fd = dirfd
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&b[0])))
		sqe.Len = mode
	})
}

// GetXattr reads the extended attribute named name of the open file fd
// into value (xattr group). It uses the by-fd form (IORING_OP_FGETXATTR,
// like fgetxattr): name goes in Addr, the value buffer in Off, its
// length in Len. The by-path form is not wrapped.
func (r *Ring) GetXattr(self *cthread.Task, fd int32, name string, value []byte) int32 {
	nameBuf := hack.StringToByteSlice(name + "\x00")
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_FGETXATTR
		sqe.Fd = fd
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&nameBuf[0])))
		if len(value) > 0 {
			sqe.Off = uint64(uintptr(unsafe.Pointer(&value[0])))
		}
		sqe.Len = uint32(len(value))
	})
}

// ProvideBuffers registers nbufs buffers of bufLen bytes each, starting
// at addr, into buffer group bgid starting at bid (Buffer group).
func (r *Ring) ProvideBuffers(self *cthread.Task, addr unsafe.Pointer, bufLen, nbufs int, bgid, bid uint16) int32 {
	return r.prepareAndSuspend(self, func(sqe *iouring.IOUringSQE) {
		sqe.Opcode = iouring.IORING_OP_PROVIDE_BUFFERS
		sqe.Addr = uint64(uintptr(addr))
		sqe.Len = uint32(bufLen)
		sqe.Fd = int32(nbufs)
		// The kernel reads the first buffer id from off and the group
		// from buf_group (the BufIndex slot), and rejects nonzero op flags.
		sqe.Off = uint64(bid)
		sqe.BufIndex = bgid
	})
}
