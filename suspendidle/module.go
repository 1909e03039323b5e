// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package suspendidle suspends sinks and sources that have had no active
// stream for a configurable timeout, and resumes them on first use.
package suspendidle

import (
	"os"
	"strconv"
	"time"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/lumosound/sound-modules/loader"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("daemon/suspend-idle")

var errPulseUnavailable = xerrors.New("failed to connect pulseaudio")

func init() {
	loader.Register(NewModule(logger))
}

type Module struct {
	*loader.ModuleBase
	manager *Manager
}

func NewModule(logger *log.Logger) *Module {
	m := new(Module)
	m.ModuleBase = loader.NewModuleBase("suspendidle", m, logger)
	return m
}

func (*Module) GetDependencies() []string {
	return []string{}
}

func (m *Module) Start() error {
	if m.manager != nil {
		return nil
	}

	timeout := defaultTimeout
	if value := os.Getenv("SUSPEND_IDLE_TIMEOUT"); value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			logger.Warningf("ignoring invalid SUSPEND_IDLE_TIMEOUT %q", value)
		} else {
			timeout = time.Duration(seconds) * time.Second
		}
	}

	m.manager = newManager(pactlSuspender{}, timeout)
	err := m.manager.init()
	if err != nil {
		logger.Warning("failed to init suspend-idle module:", err)
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
