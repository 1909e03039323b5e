// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"fmt"
	"sync"
	"time"

	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
)

type EnableFlag int

const (
	EnableFlagNone EnableFlag = 1 << iota
	EnableFlagIgnoreMissingModule
)

func (flags EnableFlag) HasFlag(flag EnableFlag) bool {
	return flags&flag != 0
}

const (
	ErrorMissingModule int = iota
	ErrorCircleDependencies
	ErrorInternalError
)

type EnableError struct {
	ModuleName string
	Code       int
	detail     string
}

func (e *EnableError) Error() string {
	switch e.Code {
	case ErrorMissingModule:
		return fmt.Sprintf("module %s is missing", e.ModuleName)
	case ErrorCircleDependencies:
		return fmt.Sprintf("dependency circle involving %s", e.ModuleName)
	case ErrorInternalError:
		return fmt.Sprintf("module %s failed to start: %s", e.ModuleName, e.detail)
	}
	panic("EnableError: unknown error code")
}

type Loader struct {
	modules Modules
	log     *log.Logger
	lock    sync.Mutex
	service *dbusutil.Service
}

func (l *Loader) SetLogLevel(pri log.Priority) {
	l.log.SetLogLevel(pri)

	l.lock.Lock()
	defer l.lock.Unlock()

	for _, module := range l.modules {
		module.SetLogLevel(pri)
	}
}

func (l *Loader) AddModule(m Module) {
	l.lock.Lock()
	defer l.lock.Unlock()
	name := m.Name()
	_, exist := l.modules[name]
	if exist {
		l.log.Debug("Register", name, "is already registered")
		return
	}
	l.log.Debug("Register module:", name)
	l.modules[name] = m
}

func (l *Loader) DeleteModule(name string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.modules, name)
}

func (l *Loader) List() []Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	modules := make([]Module, 0, len(l.modules))
	for _, m := range l.modules {
		modules = append(modules, m)
	}
	return modules
}

func (l *Loader) GetModule(name string) Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.modules[name]
}

func (l *Loader) WaitDependencies(module Module) {
	for _, dependencyName := range module.GetDependencies() {
		// dependencies ignored during resolve are not in the map
		dependency := l.modules[dependencyName]
		if dependency == nil {
			continue
		}
		dependency.WaitEnable()
	}
}

// resolveOrder produces a start order where every module appears after its
// dependencies. The module set here is small, so a depth-first walk with a
// visiting mark is enough.
func (l *Loader) resolveOrder(names []string, flag EnableFlag) ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int)
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return &EnableError{ModuleName: name, Code: ErrorCircleDependencies}
		}

		module := l.modules[name]
		if module == nil {
			if flag.HasFlag(EnableFlagIgnoreMissingModule) {
				l.log.Info("ignoring missing module", name)
				state[name] = visited
				return nil
			}
			return &EnableError{ModuleName: name, Code: ErrorMissingModule}
		}

		state[name] = visiting
		for _, dep := range module.GetDependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (l *Loader) EnableModules(enablingModules []string, disableModules []string, flag EnableFlag) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	disabled := make(map[string]bool, len(disableModules))
	for _, name := range disableModules {
		disabled[name] = true
	}

	var requested []string
	for _, name := range enablingModules {
		if disabled[name] {
			l.log.Info("module", name, "is disabled")
			continue
		}
		requested = append(requested, name)
	}

	startTime := time.Now()
	order, err := l.resolveOrder(requested, flag)
	if err != nil {
		return err
	}

	for _, name := range order {
		module := l.modules[name]
		if module == nil {
			continue
		}
		name := name

		go func() {
			l.log.Info("enable module", name)
			startTime := time.Now()

			l.WaitDependencies(module)

			err := module.Enable(true)
			duration := time.Since(startTime)
			if err != nil {
				l.log.Errorf("enable module %s failed: %s, cost %s", name, err, duration)
			} else {
				l.log.Infof("enable module %s done, cost %s", name, duration)
			}
		}()
	}

	for _, name := range order {
		if m := l.modules[name]; m != nil {
			m.WaitEnable()
		}
	}

	l.log.Infof("enable modules done, cost %s", time.Since(startTime))
	return nil
}
