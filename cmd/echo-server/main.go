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

// Command echo-server is the S6 scenario's server half: it accepts one
// connection, echoes everything it reads back to the client, and exits
// once the client closes. It is a collaborator the spec treats as
// out-of-scope (§1) — useful to exercise the runtime end to end, not
// part of its public surface.
package main

import (
	"flag"
	"log"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/kernel"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "listen address")
	flag.Parse()

	k, err := kernel.InitKernel(kernel.DefaultConfig())
	if err != nil {
		log.Fatalf("init kernel: %v", err)
	}
	defer k.FiniKernel()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	log.Printf("echo-server listening on %s", ln.Addr())

	lfd, err := listenerFd(ln)
	if err != nil {
		log.Fatalf("listener fd: %v", err)
	}

	exit := k.RunMain(func(self *cthread.Task, args ...interface{}) int32 {
		connFd := k.Ring.Accept(self, lfd)
		if connFd < 0 {
			log.Printf("accept failed: %d", connFd)
			return 1
		}
		defer k.Ring.CloseFd(self, connFd)

		buf := make([]byte, 4096)
		for {
			n := k.Ring.Recv(self, connFd, buf, 0)
			if n <= 0 {
				break
			}
			sent := int32(0)
			for sent < n {
				w := k.Ring.Send(self, connFd, buf[sent:n], 0)
				if w <= 0 {
					return 1
				}
				sent += w
			}
		}
		return 0
	})

	log.Printf("echo-server exiting with code %d", exit)
}

func listenerFd(ln net.Listener) (int32, error) {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return -1, syscall.EINVAL
	}
	sc, err := tcpLn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = sc.Control(func(f uintptr) { fd = int(f) })
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		return -1, err
	}
	return int32(fd), nil
}
