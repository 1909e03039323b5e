// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bluetooth discovers BlueZ audio devices and media transports on
// the system bus and provides HFP audio connections through an oFono
// handsfree audio agent.
package bluetooth

import (
	"errors"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/lumosound/sound-modules/loader"
)

var logger = log.NewLogger("daemon/bluetooth-audio")

var (
	errUnsupportedCodec = errors.New("unsupported HFP codec")
	errUnknownCard      = errors.New("unknown handsfree audio card")
)

func init() {
	loader.Register(NewModule(logger))
}

type Module struct {
	*loader.ModuleBase
	discovery *Discovery
	agent     *HfAudioAgent
}

func NewModule(logger *log.Logger) *Module {
	m := new(Module)
	m.ModuleBase = loader.NewModuleBase("bluetooth", m, logger)
	return m
}

func (*Module) GetDependencies() []string {
	return []string{}
}

func (m *Module) Start() error {
	if m.discovery != nil {
		return nil
	}

	service := loader.GetService()

	m.discovery = newDiscovery(service.Conn())
	m.discovery.TransportStateChanged = func(t *Transport) {
		logger.Infof("transport %s (%s) is now %s", t.Path, t.Profile, t.State)
	}
	m.discovery.DeviceConnectionChanged = func(d *Device) {
		logger.Infof("device %s (%s) audio connected: %v",
			d.Alias, d.Path, d.AnyTransportConnected())
	}
	err := m.discovery.init()
	if err != nil {
		logger.Warning("failed to init bluetooth discovery:", err)
		m.discovery = nil
		return nil
	}

	m.agent = newHfAudioAgent(service)
	err = m.agent.init()
	if err != nil {
		logger.Warning("failed to init handsfree audio agent:", err)
		m.agent = nil
	}
	return nil
}

func (m *Module) Stop() error {
	if m.agent != nil {
		m.agent.destroy()
		m.agent = nil
	}
	if m.discovery != nil {
		m.discovery.destroy()
		m.discovery = nil
	}
	return nil
}
