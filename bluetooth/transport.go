// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bluetooth

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

const (
	mediaTransportInterface = "org.bluez.MediaTransport1"

	errNameNotAvailable = "org.bluez.Error.NotAvailable"
)

// ErrNotAvailable is returned by TryAcquire when the transport is not ready
// to stream yet. It is informational, not a failure.
var ErrNotAvailable = errors.New("transport not available")

// Profile is the audio role a transport serves.
type Profile int

const (
	ProfileUnknown Profile = iota
	ProfileA2DPSink
	ProfileA2DPSource
	ProfileHeadset
)

func (p Profile) String() string {
	switch p {
	case ProfileA2DPSink:
		return "a2dp-sink"
	case ProfileA2DPSource:
		return "a2dp-source"
	case ProfileHeadset:
		return "headset"
	}
	return "unknown"
}

const (
	uuidA2DPSource = "0000110a-0000-1000-8000-00805f9b34fb"
	uuidA2DPSink   = "0000110b-0000-1000-8000-00805f9b34fb"
	uuidHSP        = "00001108-0000-1000-8000-00805f9b34fb"
	uuidHFP        = "0000111e-0000-1000-8000-00805f9b34fb"
)

func profileFromUUID(uuid string) Profile {
	switch uuid {
	case uuidA2DPSource:
		return ProfileA2DPSource
	case uuidA2DPSink:
		return ProfileA2DPSink
	case uuidHSP, uuidHFP:
		return ProfileHeadset
	}
	return ProfileUnknown
}

// TransportState follows the lifecycle of a media transport.
type TransportState int

const (
	TransportStateDisconnected TransportState = iota
	TransportStateIdle
	TransportStatePlaying
)

func (s TransportState) String() string {
	switch s {
	case TransportStateDisconnected:
		return "disconnected"
	case TransportStateIdle:
		return "idle"
	case TransportStatePlaying:
		return "playing"
	}
	return "invalid"
}

// transportStateFromBluez maps the State property of a MediaTransport1
// object. "pending" means the remote end has started streaming and the fd
// is acquirable, so it counts as playing.
func transportStateFromBluez(value string) TransportState {
	switch value {
	case "idle":
		return TransportStateIdle
	case "pending", "active":
		return TransportStatePlaying
	}
	return TransportStateDisconnected
}

// Transport is one org.bluez.MediaTransport1 object belonging to a device.
type Transport struct {
	conn *dbus.Conn

	Device  dbus.ObjectPath
	Owner   string
	Path    dbus.ObjectPath
	Profile Profile
	Codec   byte
	Config  []byte

	State TransportState
}

// Acquire asks BlueZ for the transport's stream fd and MTUs.
func (t *Transport) Acquire() (fd dbus.UnixFD, imtu, omtu uint16, err error) {
	return t.acquire("Acquire")
}

// TryAcquire is the optional form of Acquire: it only succeeds if the
// stream fd is already available, and reports ErrNotAvailable otherwise.
func (t *Transport) TryAcquire() (fd dbus.UnixFD, imtu, omtu uint16, err error) {
	fd, imtu, omtu, err = t.acquire("TryAcquire")
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == errNameNotAvailable {
		logger.Infof("optional acquire of unavailable transport %s", t.Path)
		err = ErrNotAvailable
	}
	return
}

func (t *Transport) acquire(method string) (fd dbus.UnixFD, imtu, omtu uint16, err error) {
	obj := t.conn.Object(t.Owner, t.Path)
	err = obj.Call(mediaTransportInterface+"."+method, 0).Store(&fd, &imtu, &omtu)
	return
}

// Release hands the stream fd back. Transports that BlueZ already released
// on its own are left alone.
func (t *Transport) Release() {
	if t.State <= TransportStateIdle {
		logger.Infof("transport %s auto-released by bluez or already released", t.Path)
		return
	}

	obj := t.conn.Object(t.Owner, t.Path)
	err := obj.Call(mediaTransportInterface+".Release", 0).Err
	if err != nil {
		logger.Warningf("failed to release transport %s: %v", t.Path, err)
		return
	}
	logger.Infof("transport %s released", t.Path)
}
