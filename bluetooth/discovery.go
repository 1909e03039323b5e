// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bluetooth

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	bluez "github.com/linuxdeepin/go-dbus-factory/system/org.bluez"
	ofdbus "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.dbus"
	"github.com/linuxdeepin/go-lib/dbusutil"
)

const (
	bluezService         = "org.bluez"
	bluezDeviceInterface = "org.bluez.Device1"

	propertiesInterface     = "org.freedesktop.DBus.Properties"
	propertiesChangedMember = "PropertiesChanged"
)

// Discovery tracks the audio devices and media transports BlueZ publishes
// on the system bus. Other modules hook the two callbacks to learn about
// transport state changes and device connections.
type Discovery struct {
	conn          *dbus.Conn
	sigLoop       *dbusutil.SignalLoop
	objectManager bluez.ObjectManager
	sysDBusDaemon ofdbus.DBus

	mu         sync.Mutex
	devices    map[dbus.ObjectPath]*Device
	transports map[dbus.ObjectPath]*Transport

	// invoked with the discovery lock held, keep them short
	TransportStateChanged   func(t *Transport)
	DeviceConnectionChanged func(d *Device)

	propSignals chan *dbus.Signal
	quit        chan struct{}
}

func newDiscovery(conn *dbus.Conn) *Discovery {
	return &Discovery{
		conn:          conn,
		sigLoop:       dbusutil.NewSignalLoop(conn, 10),
		objectManager: bluez.NewObjectManager(conn),
		sysDBusDaemon: ofdbus.NewDBus(conn),
		devices:       make(map[dbus.ObjectPath]*Device),
		transports:    make(map[dbus.ObjectPath]*Transport),
	}
}

func (d *Discovery) init() error {
	d.sigLoop.Start()
	d.quit = make(chan struct{})

	d.sysDBusDaemon.InitSignalExt(d.sigLoop, true)
	_, err := d.sysDBusDaemon.ConnectNameOwnerChanged(d.handleNameOwnerChanged)
	if err != nil {
		logger.Warning(err)
	}

	d.objectManager.InitSignalExt(d.sigLoop, true)
	_, err = d.objectManager.ConnectInterfacesAdded(d.handleInterfacesAdded)
	if err != nil {
		logger.Warning(err)
	}
	_, err = d.objectManager.ConnectInterfacesRemoved(d.handleInterfacesRemoved)
	if err != nil {
		logger.Warning(err)
	}

	err = d.conn.BusObject().AddMatchSignal(propertiesInterface, propertiesChangedMember,
		dbus.WithMatchArg(0, mediaTransportInterface),
		dbus.WithMatchSender(bluezService)).Err
	if err != nil {
		logger.Warning(err)
	}
	d.propSignals = make(chan *dbus.Signal, 10)
	d.conn.Signal(d.propSignals)
	go d.handlePropSignals()

	d.loadObjects()
	return nil
}

func (d *Discovery) destroy() {
	close(d.quit)
	d.conn.RemoveSignal(d.propSignals)
	d.sysDBusDaemon.RemoveAllHandlers()
	d.objectManager.RemoveAllHandlers()
	d.sigLoop.Stop()
}

// loadObjects picks up the devices and transports that already exist.
func (d *Discovery) loadObjects() {
	objects, err := d.objectManager.GetManagedObjects(0)
	if err != nil {
		logger.Warning(err)
		return
	}

	// devices first so transports find their owner device
	for path, obj := range objects {
		if _, ok := obj[bluezDeviceInterface]; ok {
			d.addDevice(path)
		}
	}
	for path, obj := range objects {
		if props, ok := obj[mediaTransportInterface]; ok {
			d.addTransport(path, props)
		}
	}
}

func (d *Discovery) handleInterfacesAdded(path dbus.ObjectPath, data map[string]map[string]dbus.Variant) {
	if _, ok := data[bluezDeviceInterface]; ok {
		d.addDevice(path)
	}
	if props, ok := data[mediaTransportInterface]; ok {
		d.addTransport(path, props)
	}
}

func (d *Discovery) handleInterfacesRemoved(path dbus.ObjectPath, interfaces []string) {
	for _, iface := range interfaces {
		switch iface {
		case bluezDeviceInterface:
			d.removeDevice(path)
		case mediaTransportInterface:
			d.removeTransport(path)
		}
	}
}

func (d *Discovery) handleNameOwnerChanged(name, oldOwner, newOwner string) {
	if name != bluezService {
		return
	}
	if oldOwner != "" && newOwner == "" {
		logger.Info("bluetooth daemon disappeared")
		d.removeAllDevices()
	}
	if newOwner != "" {
		logger.Info("bluetooth daemon appeared")
		// give bluez a moment to publish its objects
		time.AfterFunc(1*time.Second, d.loadObjects)
	}
}

func (d *Discovery) addDevice(path dbus.ObjectPath) {
	dev := newDevice(d.conn, path)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.devices[path]; ok {
		return
	}
	d.devices[path] = dev
	logger.Debugf("device %s (%s) added", dev.Alias, path)
}

func (d *Discovery) removeDevice(path dbus.ObjectPath) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev := d.devices[path]
	if dev == nil {
		logger.Warningf("unknown device removed %s", path)
		return
	}
	for _, t := range dev.transports {
		d.setTransportStateLocked(t, TransportStateDisconnected)
		delete(d.transports, t.Path)
	}
	delete(d.devices, path)
	logger.Debugf("device %s removed", path)
}

func (d *Discovery) removeAllDevices() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, dev := range d.devices {
		for _, t := range dev.transports {
			d.setTransportStateLocked(t, TransportStateDisconnected)
			delete(d.transports, t.Path)
		}
		delete(d.devices, path)
		if d.DeviceConnectionChanged != nil {
			d.DeviceConnectionChanged(dev)
		}
	}
}

func (d *Discovery) addTransport(path dbus.ObjectPath, props map[string]dbus.Variant) {
	devicePath := variantObjectPath(props, "Device")
	uuid := variantString(props, "UUID")
	profile := profileFromUUID(uuid)
	if profile == ProfileUnknown {
		logger.Debugf("ignoring transport %s with unknown uuid %s", path, uuid)
		return
	}

	t := &Transport{
		conn:    d.conn,
		Device:  devicePath,
		Owner:   bluezService,
		Path:    path,
		Profile: profile,
		Codec:   variantByte(props, "Codec"),
		Config:  variantBytes(props, "Configuration"),
		State:   TransportStateDisconnected,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dev := d.devices[devicePath]
	if dev == nil {
		logger.Warningf("transport %s belongs to unknown device %s", path, devicePath)
		return
	}
	dev.transports[profile] = t
	d.transports[path] = t
	logger.Debugf("transport %s added, profile %s codec %d", path, profile, t.Codec)

	d.setTransportStateLocked(t, TransportStateIdle)
	if state := variantString(props, "State"); state != "" {
		d.setTransportStateLocked(t, transportStateFromBluez(state))
	}
}

func (d *Discovery) removeTransport(path dbus.ObjectPath) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.transports[path]
	if t == nil {
		return
	}
	d.setTransportStateLocked(t, TransportStateDisconnected)
	delete(d.transports, path)
	if dev := d.devices[t.Device]; dev != nil {
		delete(dev.transports, t.Profile)
	}
	logger.Debugf("transport %s removed", path)
}

// setTransportStateLocked updates one transport's state and fires the
// callbacks, including the device-level connection change when the device
// flips between connected and fully disconnected.
func (d *Discovery) setTransportStateLocked(t *Transport, state TransportState) {
	if t.State == state {
		return
	}
	dev := d.devices[t.Device]
	oldConnected := dev != nil && dev.AnyTransportConnected()

	logger.Debugf("transport %s state changed from %s to %s", t.Path, t.State, state)
	t.State = state

	if d.TransportStateChanged != nil {
		d.TransportStateChanged(t)
	}
	if dev != nil && dev.AnyTransportConnected() != oldConnected &&
		d.DeviceConnectionChanged != nil {
		d.DeviceConnectionChanged(dev)
	}
}

func (d *Discovery) handlePropSignals() {
	for {
		select {
		case <-d.quit:
			return
		case sig, ok := <-d.propSignals:
			if !ok {
				return
			}
			if sig.Name != propertiesInterface+"."+propertiesChangedMember {
				continue
			}
			var iface string
			var changed map[string]dbus.Variant
			var invalidated []string
			err := dbus.Store(sig.Body, &iface, &changed, &invalidated)
			if err != nil || iface != mediaTransportInterface {
				continue
			}
			state := variantString(changed, "State")
			if state == "" {
				continue
			}

			d.mu.Lock()
			if t := d.transports[sig.Path]; t != nil {
				d.setTransportStateLocked(t, transportStateFromBluez(state))
			}
			d.mu.Unlock()
		}
	}
}

func variantString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func variantObjectPath(props map[string]dbus.Variant, key string) dbus.ObjectPath {
	if v, ok := props[key]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			return p
		}
	}
	return ""
}

func variantByte(props map[string]dbus.Variant, key string) byte {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(byte); ok {
			return b
		}
	}
	return 0
}

func variantBytes(props map[string]dbus.Variant, key string) []byte {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().([]byte); ok {
			return b
		}
	}
	return nil
}
