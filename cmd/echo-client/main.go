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

// Command echo-client is the S6 scenario's client half: it connects to
// echo-server, writes a message, reads the echoed reply, and exits. An
// out-of-scope collaborator (§1), included only to exercise the runtime
// end to end.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"syscall"

	"github.com/cloudwego/akrun/cthread"
	"github.com/cloudwego/akrun/kernel"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "server address")
	msg := flag.String("msg", "hello, akrun", "message to echo")
	flag.Parse()

	k, err := kernel.InitKernel(kernel.DefaultConfig())
	if err != nil {
		log.Fatalf("init kernel: %v", err)
	}
	defer k.FiniKernel()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	connFd, err := connFd(conn)
	if err != nil {
		log.Fatalf("conn fd: %v", err)
	}

	exit := k.RunMain(func(self *cthread.Task, args ...interface{}) int32 {
		payload := []byte(*msg)
		sent := int32(0)
		for sent < int32(len(payload)) {
			w := k.Ring.Send(self, connFd, payload[sent:], 0)
			if w <= 0 {
				return 1
			}
			sent += w
		}

		buf := make([]byte, len(payload))
		n := k.Ring.Recv(self, connFd, buf, 0)
		if n <= 0 {
			return 1
		}
		os.Stdout.Write(buf[:n])
		os.Stdout.WriteString("\n")
		return 0
	})

	log.Printf("echo-client exiting with code %d", exit)
}

func connFd(conn net.Conn) (int32, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return -1, syscall.EINVAL
	}
	sc, err := tcpConn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = sc.Control(func(f uintptr) { fd = int(f) })
	if err != nil {
		return -1, err
	}
	return int32(fd), nil
}
