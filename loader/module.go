// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"fmt"
	"sync"

	"github.com/linuxdeepin/go-lib/log"
)

// Module is a loadable sound-server policy module. Implementations embed
// ModuleBase and provide Start/Stop.
type Module interface {
	Name() string
	IsEnable() bool
	Enable(bool) error
	GetDependencies() []string
	SetLogLevel(log.Priority)
	LogLevel() log.Priority
	WaitEnable()
	ModuleImpl
}

type Modules map[string]Module

type ModuleImpl interface {
	Start() error // keep Start sync; error logging is done by the loader
	Stop() error
}

type ModuleBase struct {
	impl    ModuleImpl
	enabled bool
	name    string
	log     *log.Logger
	wg      sync.WaitGroup
}

func NewModuleBase(name string, impl ModuleImpl, logger *log.Logger) *ModuleBase {
	m := &ModuleBase{
		name: name,
		impl: impl,
		log:  logger,
	}

	// Modules depending on this one wait on the WaitGroup, possibly before
	// Enable has ever been called on it, so the Add must happen here.
	m.wg.Add(1)

	return m
}

func (m *ModuleBase) doEnable(enable bool) error {
	if m.impl != nil {
		fn := m.impl.Stop
		if enable {
			fn = m.impl.Start
		}

		if err := fn(); err != nil {
			return err
		}

		if enable {
			m.wg.Done()
		}
	}
	m.enabled = enable
	return nil
}

func (m *ModuleBase) Enable(enable bool) error {
	if m.enabled == enable {
		return fmt.Errorf("module %s is already in the requested state", m.name)
	}
	return m.doEnable(enable)
}

func (m *ModuleBase) IsEnable() bool {
	return m.enabled
}

func (m *ModuleBase) WaitEnable() {
	m.wg.Wait()
}

func (m *ModuleBase) Name() string {
	return m.name
}

func (m *ModuleBase) SetLogLevel(pri log.Priority) {
	m.log.SetLogLevel(pri)
}

func (m *ModuleBase) LogLevel() log.Priority {
	return m.log.GetLogLevel()
}
