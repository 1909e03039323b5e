// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bluetooth

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportStateFromBluez(t *testing.T) {
	assert.Equal(t, TransportStateIdle, transportStateFromBluez("idle"))
	assert.Equal(t, TransportStatePlaying, transportStateFromBluez("pending"))
	assert.Equal(t, TransportStatePlaying, transportStateFromBluez("active"))
	assert.Equal(t, TransportStateDisconnected, transportStateFromBluez(""))
	assert.Equal(t, TransportStateDisconnected, transportStateFromBluez("bogus"))
}

func TestProfileFromUUID(t *testing.T) {
	assert.Equal(t, ProfileA2DPSource, profileFromUUID(uuidA2DPSource))
	assert.Equal(t, ProfileA2DPSink, profileFromUUID(uuidA2DPSink))
	assert.Equal(t, ProfileHeadset, profileFromUUID(uuidHSP))
	assert.Equal(t, ProfileHeadset, profileFromUUID(uuidHFP))
	assert.Equal(t, ProfileUnknown, profileFromUUID("0000abcd-0000-1000-8000-00805f9b34fb"))
}

func newTestDiscovery() *Discovery {
	return &Discovery{
		devices:    make(map[dbus.ObjectPath]*Device),
		transports: make(map[dbus.ObjectPath]*Transport),
	}
}

func seedDevice(d *Discovery, path dbus.ObjectPath) *Device {
	dev := &Device{
		Path:       path,
		Alias:      "Headphones",
		transports: make(map[Profile]*Transport),
	}
	d.devices[path] = dev
	return dev
}

func a2dpTransportProps(device dbus.ObjectPath, state string) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Device":        dbus.MakeVariant(device),
		"UUID":          dbus.MakeVariant(uuidA2DPSink),
		"Codec":         dbus.MakeVariant(byte(0)),
		"Configuration": dbus.MakeVariant([]byte{0x21, 0x15, 0x02, 0x35}),
		"State":         dbus.MakeVariant(state),
	}
}

func TestAddTransportFiresCallbacks(t *testing.T) {
	d := newTestDiscovery()
	dev := seedDevice(d, "/org/bluez/hci0/dev_AA")

	var stateChanges []TransportState
	var connectionChanges []bool
	d.TransportStateChanged = func(tr *Transport) {
		stateChanges = append(stateChanges, tr.State)
	}
	d.DeviceConnectionChanged = func(dev *Device) {
		connectionChanges = append(connectionChanges, dev.AnyTransportConnected())
	}

	transportPath := dbus.ObjectPath("/org/bluez/hci0/dev_AA/fd0")
	d.addTransport(transportPath, a2dpTransportProps(dev.Path, "idle"))

	tr := d.transports[transportPath]
	require.NotNil(t, tr)
	assert.Equal(t, ProfileA2DPSink, tr.Profile)
	assert.Equal(t, TransportStateIdle, tr.State)
	assert.Equal(t, []byte{0x21, 0x15, 0x02, 0x35}, tr.Config)
	assert.Same(t, tr, dev.Transport(ProfileA2DPSink))

	// a new transport goes disconnected -> idle, connecting the device
	assert.Equal(t, []TransportState{TransportStateIdle}, stateChanges)
	assert.Equal(t, []bool{true}, connectionChanges)
}

func TestTransportStateChangeCallbacks(t *testing.T) {
	d := newTestDiscovery()
	dev := seedDevice(d, "/org/bluez/hci0/dev_AA")
	transportPath := dbus.ObjectPath("/org/bluez/hci0/dev_AA/fd0")
	d.addTransport(transportPath, a2dpTransportProps(dev.Path, "idle"))
	tr := d.transports[transportPath]

	var stateChanges, connectionChanges int
	d.TransportStateChanged = func(*Transport) { stateChanges++ }
	d.DeviceConnectionChanged = func(*Device) { connectionChanges++ }

	// idle -> playing changes the transport but not the device's
	// connected flag
	d.setTransportStateLocked(tr, TransportStatePlaying)
	assert.Equal(t, 1, stateChanges)
	assert.Equal(t, 0, connectionChanges)

	// same state again is a no-op
	d.setTransportStateLocked(tr, TransportStatePlaying)
	assert.Equal(t, 1, stateChanges)

	// disconnecting the only transport also disconnects the device
	d.setTransportStateLocked(tr, TransportStateDisconnected)
	assert.Equal(t, 2, stateChanges)
	assert.Equal(t, 1, connectionChanges)
	assert.False(t, dev.AnyTransportConnected())
}

func TestRemoveTransport(t *testing.T) {
	d := newTestDiscovery()
	dev := seedDevice(d, "/org/bluez/hci0/dev_AA")
	transportPath := dbus.ObjectPath("/org/bluez/hci0/dev_AA/fd0")
	d.addTransport(transportPath, a2dpTransportProps(dev.Path, "active"))
	require.Equal(t, TransportStatePlaying, d.transports[transportPath].State)

	var connectionChanges int
	d.DeviceConnectionChanged = func(*Device) { connectionChanges++ }

	d.removeTransport(transportPath)
	assert.Nil(t, d.transports[transportPath])
	assert.Nil(t, dev.Transport(ProfileA2DPSink))
	assert.Equal(t, 1, connectionChanges)
}

func TestAddTransportUnknownDevice(t *testing.T) {
	d := newTestDiscovery()
	d.addTransport("/org/bluez/hci0/dev_BB/fd0",
		a2dpTransportProps("/org/bluez/hci0/dev_BB", "idle"))
	assert.Empty(t, d.transports)
}

func TestAddTransportUnknownProfile(t *testing.T) {
	d := newTestDiscovery()
	seedDevice(d, "/org/bluez/hci0/dev_AA")

	props := a2dpTransportProps("/org/bluez/hci0/dev_AA", "idle")
	props["UUID"] = dbus.MakeVariant("00001101-0000-1000-8000-00805f9b34fb")
	d.addTransport("/org/bluez/hci0/dev_AA/fd0", props)
	assert.Empty(t, d.transports)
}

func TestReleaseIdleTransportIsNoOp(t *testing.T) {
	// an idle transport was never acquired; Release must not call out
	tr := &Transport{Path: "/org/bluez/hci0/dev_AA/fd0", State: TransportStateIdle}
	tr.Release()
}
