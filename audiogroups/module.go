// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package audiogroups classifies sound-server streams into named audio
// groups with boolean match rules and applies the group volume and mute
// controls to the streams that match.
package audiogroups

import (
	"os"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/lumosound/sound-modules/loader"
)

var logger = log.NewLogger("daemon/audio-groups")

func init() {
	loader.Register(NewModule(logger))
}

type Module struct {
	*loader.ModuleBase
	manager *Manager
}

func NewModule(logger *log.Logger) *Module {
	m := new(Module)
	m.ModuleBase = loader.NewModuleBase("audiogroups", m, logger)
	return m
}

func (*Module) GetDependencies() []string {
	return []string{}
}

func (m *Module) Start() error {
	if m.manager != nil {
		return nil
	}

	m.manager = newManager(os.Getenv("AUDIO_GROUPS_CONFIG_FILE"))
	err := m.manager.init()
	if err != nil {
		logger.Warning("failed to init audio-groups module:", err)
		m.manager = nil
	}
	return nil
}

func (m *Module) Stop() error {
	if m.manager == nil {
		return nil
	}
	m.manager.destroy()
	m.manager = nil
	return nil
}
