// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package netutil carries the small socket and filesystem helpers shared by
// the transport-facing modules.
package netutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

const iptosLowDelay = 0x10

// MakeNonblock puts fd into non-blocking mode. Already non-blocking fds are
// left untouched.
func MakeNonblock(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return xerrors.Errorf("get fd flags: %w", err)
	}
	if flags&unix.O_NONBLOCK != 0 {
		return nil
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK)
	if err != nil {
		return xerrors.Errorf("set fd flags: %w", err)
	}
	return nil
}

// MakeSocketLowDelay shrinks the socket buffers and raises the packet
// priority for latency-sensitive traffic. Every option is attempted even if
// an earlier one fails; the first error is returned.
func MakeSocketLowDelay(fd int) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 1024))
	keep(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, 1024))
	keep(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, 7))
	return firstErr
}

// MakeTCPSocketLowDelay applies MakeSocketLowDelay plus the TCP-specific
// low-latency options.
func MakeTCPSocketLowDelay(fd int) error {
	firstErr := MakeSocketLowDelay(fd)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1))
	keep(unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, iptosLowDelay))
	return firstErr
}

// PeerToString describes the peer connected to fd for log output. It never
// fails; unidentifiable peers get a generic description.
func PeerToString(fd int) string {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return "Invalid client fd"
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFSOCK:
		sa, err := unix.Getpeername(fd)
		if err != nil {
			return "Unknown network client"
		}
		switch addr := sa.(type) {
		case *unix.SockaddrInet4:
			return fmt.Sprintf("TCP/IP client from %d.%d.%d.%d:%d",
				addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3], addr.Port)
		case *unix.SockaddrUnix:
			return fmt.Sprintf("UNIX client for %s", addr.Name)
		}
		return "Unknown network client"
	case unix.S_IFCHR:
		if fd == 0 || fd == 1 {
			return "STDIN/STDOUT client"
		}
	}
	return "Unknown client"
}

// MakeSecureDir creates dir with mode 0700 owned by the current user. An
// existing directory is accepted only if it already satisfies both
// conditions; anything else is removed and reported as an error.
func MakeSecureDir(dir string) error {
	err := os.Mkdir(dir, 0700)
	if err != nil && !os.IsExist(err) {
		return xerrors.Errorf("mkdir %s: %w", dir, err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(dir, &st); err != nil {
		_ = os.Remove(dir)
		return xerrors.Errorf("lstat %s: %w", dir, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR ||
		int(st.Uid) != os.Getuid() ||
		st.Mode&0777 != 0700 {
		_ = os.Remove(dir)
		return xerrors.Errorf("%s is not a secure directory", dir)
	}
	return nil
}
