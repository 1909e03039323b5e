// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"sync"
	"testing"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *startRecorder) add(name string) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func (r *startRecorder) index(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

type testModule struct {
	*ModuleBase
	deps     []string
	recorder *startRecorder
}

func newTestModule(name string, deps []string, rec *startRecorder) *testModule {
	m := &testModule{deps: deps, recorder: rec}
	m.ModuleBase = NewModuleBase(name, m, log.NewLogger("daemon/test/"+name))
	return m
}

func (m *testModule) GetDependencies() []string {
	return m.deps
}

func (m *testModule) Start() error {
	m.recorder.add(m.Name())
	return nil
}

func (m *testModule) Stop() error {
	return nil
}

func newTestLoader() *Loader {
	return &Loader{
		modules: Modules{},
		log:     log.NewLogger("daemon/loader/test"),
	}
}

func TestEnableModulesOrder(t *testing.T) {
	l := newTestLoader()
	rec := &startRecorder{}

	l.AddModule(newTestModule("audiogroups", nil, rec))
	l.AddModule(newTestModule("suspendidle", []string{"audiogroups"}, rec))
	l.AddModule(newTestModule("bluetooth", nil, rec))

	err := l.EnableModules([]string{"suspendidle", "bluetooth", "audiogroups"}, nil, EnableFlagNone)
	require.NoError(t, err)

	assert.Len(t, rec.names, 3)
	assert.Less(t, rec.index("audiogroups"), rec.index("suspendidle"))
}

func TestEnableModulesDisable(t *testing.T) {
	l := newTestLoader()
	rec := &startRecorder{}

	l.AddModule(newTestModule("audiogroups", nil, rec))
	l.AddModule(newTestModule("bluetooth", nil, rec))

	err := l.EnableModules([]string{"audiogroups", "bluetooth"}, []string{"bluetooth"}, EnableFlagNone)
	require.NoError(t, err)

	assert.Equal(t, -1, rec.index("bluetooth"))
	assert.Equal(t, 0, rec.index("audiogroups"))
}

func TestEnableModulesMissing(t *testing.T) {
	l := newTestLoader()
	rec := &startRecorder{}
	l.AddModule(newTestModule("audiogroups", []string{"nonexistent"}, rec))

	err := l.EnableModules([]string{"audiogroups"}, nil, EnableFlagNone)
	require.Error(t, err)
	enableErr, ok := err.(*EnableError)
	require.True(t, ok)
	assert.Equal(t, ErrorMissingModule, enableErr.Code)

	// with the ignore flag the module still starts
	err = l.EnableModules([]string{"audiogroups"}, nil, EnableFlagIgnoreMissingModule)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.index("audiogroups"))
}

func TestWaitDependenciesSkipsMissing(t *testing.T) {
	l := newTestLoader()
	rec := &startRecorder{}
	m := newTestModule("audiogroups", []string{"nonexistent"}, rec)
	l.AddModule(m)

	assert.NotPanics(t, func() {
		l.WaitDependencies(m)
	})
}

func TestEnableModulesCycle(t *testing.T) {
	l := newTestLoader()
	rec := &startRecorder{}
	l.AddModule(newTestModule("a", []string{"b"}, rec))
	l.AddModule(newTestModule("b", []string{"a"}, rec))

	err := l.EnableModules([]string{"a"}, nil, EnableFlagNone)
	require.Error(t, err)
	enableErr, ok := err.(*EnableError)
	require.True(t, ok)
	assert.Equal(t, ErrorCircleDependencies, enableErr.Code)
}
