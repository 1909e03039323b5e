// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestMakeNonblock(t *testing.T) {
	fd, _ := socketPair(t)

	require.NoError(t, MakeNonblock(fd))
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	// idempotent
	require.NoError(t, MakeNonblock(fd))
}

func TestMakeSocketLowDelay(t *testing.T) {
	fd, _ := socketPair(t)

	require.NoError(t, MakeSocketLowDelay(fd))
	prio, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY)
	require.NoError(t, err)
	assert.Equal(t, 7, prio)
}

func TestPeerToString(t *testing.T) {
	fd, _ := socketPair(t)
	assert.Contains(t, PeerToString(fd), "client")

	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "Unknown client", PeerToString(int(f.Fd())))
}

func TestMakeSecureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secure")
	require.NoError(t, MakeSecureDir(dir))
	// a second call accepts the existing directory
	require.NoError(t, MakeSecureDir(dir))

	st, err := os.Lstat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), st.Mode().Perm())

	loose := filepath.Join(t.TempDir(), "loose")
	require.NoError(t, os.Mkdir(loose, 0755))
	err = MakeSecureDir(loose)
	assert.Error(t, err)
	_, statErr := os.Lstat(loose)
	assert.True(t, os.IsNotExist(statErr))
}
