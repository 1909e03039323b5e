// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bluetooth

import (
	"sync"

	"github.com/godbus/dbus/v5"
	ofdbus "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.dbus"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/lumosound/sound-modules/common/netutil"
	"golang.org/x/sys/unix"
)

const (
	ofonoService = "org.ofono"

	hfAudioManagerInterface = ofonoService + ".HandsfreeAudioManager"
	hfAudioAgentInterface   = ofonoService + ".HandsfreeAudioAgent"
	hfAudioAgentPath        = "/HandsfreeAudioAgent"

	// HFP audio codecs, from the oFono handsfree-audio API
	CodecCVSD byte = 0x01
	CodecMSBC byte = 0x02
)

// Card is one oFono handsfree audio card, i.e. one HFP-capable remote.
type Card struct {
	Path          dbus.ObjectPath
	RemoteAddress string
	LocalAddress  string
	Type          string
}

// HfAudioAgent exports the org.ofono.HandsfreeAudioAgent object and keeps
// track of the handsfree audio cards oFono announces. SCO connections
// arrive through NewConnection.
type HfAudioAgent struct {
	service       *dbusutil.Service
	conn          *dbus.Conn
	sigLoop       *dbusutil.SignalLoop
	sysDBusDaemon ofdbus.DBus

	mu         sync.Mutex
	registered bool
	cards      map[dbus.ObjectPath]*Card

	// NewConnectionHandler takes ownership of the SCO fd. Without a
	// handler the fd is closed.
	NewConnectionHandler func(card *Card, fd int, codec byte)

	cardSignals chan *dbus.Signal
	quit        chan struct{}
}

func newHfAudioAgent(service *dbusutil.Service) *HfAudioAgent {
	conn := service.Conn()
	return &HfAudioAgent{
		service:       service,
		conn:          conn,
		sigLoop:       dbusutil.NewSignalLoop(conn, 10),
		sysDBusDaemon: ofdbus.NewDBus(conn),
		cards:         make(map[dbus.ObjectPath]*Card),
	}
}

func (*HfAudioAgent) GetInterfaceName() string {
	return hfAudioAgentInterface
}

func (a *HfAudioAgent) init() error {
	err := a.service.Export(hfAudioAgentPath, a)
	if err != nil {
		return err
	}

	a.quit = make(chan struct{})
	a.sigLoop.Start()
	a.sysDBusDaemon.InitSignalExt(a.sigLoop, true)
	_, err = a.sysDBusDaemon.ConnectNameOwnerChanged(a.handleNameOwnerChanged)
	if err != nil {
		logger.Warning(err)
	}

	err = a.conn.BusObject().AddMatchSignal(hfAudioManagerInterface, "CardAdded",
		dbus.WithMatchSender(ofonoService)).Err
	if err != nil {
		logger.Warning(err)
	}
	err = a.conn.BusObject().AddMatchSignal(hfAudioManagerInterface, "CardRemoved",
		dbus.WithMatchSender(ofonoService)).Err
	if err != nil {
		logger.Warning(err)
	}
	a.cardSignals = make(chan *dbus.Signal, 10)
	a.conn.Signal(a.cardSignals)
	go a.handleCardSignals()

	a.register()
	return nil
}

func (a *HfAudioAgent) destroy() {
	a.unregister()
	close(a.quit)
	a.conn.RemoveSignal(a.cardSignals)
	a.sysDBusDaemon.RemoveAllHandlers()
	a.sigLoop.Stop()

	err := a.service.StopExport(a)
	if err != nil {
		logger.Warning(err)
	}
}

// register announces the agent and its codecs to oFono and pulls the cards
// that already exist. A missing oFono daemon is not an error; registration
// is retried when it appears on the bus.
func (a *HfAudioAgent) register() {
	obj := a.conn.Object(ofonoService, "/")
	err := obj.Call(hfAudioManagerInterface+".Register", 0,
		dbus.ObjectPath(hfAudioAgentPath), []byte{CodecCVSD, CodecMSBC}).Err
	if err != nil {
		logger.Debugf("handsfree audio agent not registered: %v", err)
		return
	}

	a.mu.Lock()
	a.registered = true
	a.mu.Unlock()
	logger.Info("handsfree audio agent registered")

	var cards []struct {
		Path       dbus.ObjectPath
		Properties map[string]dbus.Variant
	}
	err = obj.Call(hfAudioManagerInterface+".GetCards", 0).Store(&cards)
	if err != nil {
		logger.Warning(err)
		return
	}
	for _, entry := range cards {
		a.addCard(entry.Path, entry.Properties)
	}
}

func (a *HfAudioAgent) unregister() {
	a.mu.Lock()
	registered := a.registered
	a.registered = false
	a.cards = make(map[dbus.ObjectPath]*Card)
	a.mu.Unlock()
	if !registered {
		return
	}

	obj := a.conn.Object(ofonoService, "/")
	err := obj.Call(hfAudioManagerInterface+".Unregister", 0,
		dbus.ObjectPath(hfAudioAgentPath)).Err
	if err != nil {
		logger.Warning(err)
	}
}

func (a *HfAudioAgent) handleNameOwnerChanged(name, oldOwner, newOwner string) {
	if name != ofonoService {
		return
	}
	if oldOwner != "" && newOwner == "" {
		logger.Info("ofono daemon disappeared")
		a.mu.Lock()
		a.registered = false
		a.cards = make(map[dbus.ObjectPath]*Card)
		a.mu.Unlock()
	}
	if newOwner != "" {
		logger.Info("ofono daemon appeared")
		a.register()
	}
}

func (a *HfAudioAgent) handleCardSignals() {
	for {
		select {
		case <-a.quit:
			return
		case sig, ok := <-a.cardSignals:
			if !ok {
				return
			}
			switch sig.Name {
			case hfAudioManagerInterface + ".CardAdded":
				var path dbus.ObjectPath
				var props map[string]dbus.Variant
				if err := dbus.Store(sig.Body, &path, &props); err != nil {
					logger.Warning(err)
					continue
				}
				a.addCard(path, props)
			case hfAudioManagerInterface + ".CardRemoved":
				var path dbus.ObjectPath
				if err := dbus.Store(sig.Body, &path); err != nil {
					logger.Warning(err)
					continue
				}
				a.removeCard(path)
			}
		}
	}
}

func (a *HfAudioAgent) addCard(path dbus.ObjectPath, props map[string]dbus.Variant) {
	card := &Card{
		Path:          path,
		RemoteAddress: variantString(props, "RemoteAddress"),
		LocalAddress:  variantString(props, "LocalAddress"),
		Type:          variantString(props, "Type"),
	}

	a.mu.Lock()
	a.cards[path] = card
	a.mu.Unlock()
	logger.Debugf("handsfree card %s added, remote %s", path, card.RemoteAddress)
}

func (a *HfAudioAgent) removeCard(path dbus.ObjectPath) {
	a.mu.Lock()
	delete(a.cards, path)
	a.mu.Unlock()
	logger.Debugf("handsfree card %s removed", path)
}

// Cards returns a snapshot of the known handsfree audio cards.
func (a *HfAudioAgent) Cards() []*Card {
	a.mu.Lock()
	defer a.mu.Unlock()
	cards := make([]*Card, 0, len(a.cards))
	for _, card := range a.cards {
		cards = append(cards, card)
	}
	return cards
}

// NewConnection is called by oFono with the SCO socket of an established
// HFP audio connection.
func (a *HfAudioAgent) NewConnection(cardPath dbus.ObjectPath, fd dbus.UnixFD, codec byte) *dbus.Error {
	if codec != CodecCVSD && codec != CodecMSBC {
		_ = unix.Close(int(fd))
		return dbusutil.ToError(errUnsupportedCodec)
	}

	a.mu.Lock()
	card := a.cards[cardPath]
	handler := a.NewConnectionHandler
	a.mu.Unlock()
	if card == nil {
		_ = unix.Close(int(fd))
		return dbusutil.ToError(errUnknownCard)
	}

	logger.Infof("new HFP connection for card %s, codec %d", cardPath, codec)
	if err := netutil.MakeNonblock(int(fd)); err != nil {
		logger.Warning(err)
	}
	if err := netutil.MakeSocketLowDelay(int(fd)); err != nil {
		logger.Warning(err)
	}

	if handler == nil {
		_ = unix.Close(int(fd))
		return nil
	}
	handler(card, int(fd), codec)
	return nil
}

// Release is called by oFono when it no longer wants the agent.
func (a *HfAudioAgent) Release() *dbus.Error {
	logger.Info("handsfree audio agent released by ofono")
	a.mu.Lock()
	a.registered = false
	a.cards = make(map[dbus.ObjectPath]*Card)
	a.mu.Unlock()
	return nil
}
