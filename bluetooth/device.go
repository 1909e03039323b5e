// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bluetooth

import (
	"github.com/godbus/dbus/v5"
	bluez "github.com/linuxdeepin/go-dbus-factory/system/org.bluez"
)

// Device is one org.bluez.Device1 object together with the media
// transports BlueZ created for it.
type Device struct {
	Path    dbus.ObjectPath
	Adapter dbus.ObjectPath
	Alias   string
	Address string

	transports map[Profile]*Transport
}

func newDevice(conn *dbus.Conn, path dbus.ObjectPath) *Device {
	d := &Device{
		Path:       path,
		transports: make(map[Profile]*Transport),
	}

	core, err := bluez.NewDevice(conn, path)
	if err != nil {
		logger.Warning(err)
		return d
	}
	d.Adapter, _ = core.Device().Adapter().Get(0)
	d.Alias, _ = core.Device().Alias().Get(0)
	d.Address, _ = core.Device().Address().Get(0)
	return d
}

// AnyTransportConnected reports whether the device has at least one
// transport that is not disconnected. Modules use this as the device-level
// "audio is connected" signal.
func (d *Device) AnyTransportConnected() bool {
	for _, t := range d.transports {
		if t.State != TransportStateDisconnected {
			return true
		}
	}
	return false
}

// Transport returns the device's transport for a profile, or nil.
func (d *Device) Transport(profile Profile) *Transport {
	return d.transports[profile]
}
