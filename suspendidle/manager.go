// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package suspendidle

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linuxdeepin/go-lib/pulse"
)

const (
	defaultTimeout = 5 * time.Second

	// per-device override, value in seconds; negative exempts the device
	timeoutProperty = "module-suspend-on-idle.timeout"
)

type deviceKey struct {
	kind  DeviceKind
	index uint32
}

type deviceRecord struct {
	kind      DeviceKind
	index     uint32
	name      string
	timeout   time.Duration
	exempt    bool
	busy      bool
	suspended bool
	lastUse   time.Time
	timer     *time.Timer
}

// Manager suspends devices that stay idle past their timeout and resumes
// them as soon as a stream needs them again.
type Manager struct {
	suspender Suspender
	timeout   time.Duration
	ctx       *pulse.Context

	mu      sync.Mutex
	devices map[deviceKey]*deviceRecord

	events chan *pulse.Event
	quit   chan struct{}
}

func newManager(suspender Suspender, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		suspender: suspender,
		timeout:   timeout,
		devices:   make(map[deviceKey]*deviceRecord),
	}
}

func (m *Manager) init() error {
	m.ctx = pulse.GetContextForced()
	if m.ctx == nil {
		return errPulseUnavailable
	}

	m.events = make(chan *pulse.Event, 100)
	m.quit = make(chan struct{})
	m.ctx.AddEventChan(m.events)

	for _, sink := range m.ctx.GetSinkList() {
		m.track(KindSink, sink.Index, sink.Name, sink.PropList)
	}
	for _, source := range m.ctx.GetSourceList() {
		if strings.HasSuffix(source.Name, ".monitor") {
			continue
		}
		m.track(KindSource, source.Index, source.Name, source.PropList)
	}
	m.refreshSinkActivity()

	go m.handleEvents()
	return nil
}

func (m *Manager) destroy() {
	close(m.quit)
	if m.ctx != nil {
		m.ctx.RemoveEventChan(m.events)
	}

	m.mu.Lock()
	for key, rec := range m.devices {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		delete(m.devices, key)
	}
	m.mu.Unlock()
}

// track starts watching one device. A freshly tracked device counts as
// idle until a stream claims it.
func (m *Manager) track(kind DeviceKind, index uint32, name string, props map[string]string) {
	rec := &deviceRecord{
		kind:    kind,
		index:   index,
		name:    name,
		timeout: m.timeout,
		lastUse: time.Now(),
	}
	if value, ok := props[timeoutProperty]; ok {
		seconds, err := strconv.Atoi(value)
		switch {
		case err != nil:
			logger.Warningf("%s %s has invalid %s value %q",
				kind, name, timeoutProperty, value)
		case seconds < 0:
			rec.exempt = true
		default:
			rec.timeout = time.Duration(seconds) * time.Second
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.devices[deviceKey{kind, index}]
	if old != nil && old.timer != nil {
		old.timer.Stop()
	}
	m.devices[deviceKey{kind, index}] = rec
	logger.Debugf("tracking %s %s, timeout %v, exempt %v", kind, name, rec.timeout, rec.exempt)
	m.armLocked(rec)
}

func (m *Manager) untrack(kind DeviceKind, index uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := deviceKey{kind, index}
	rec := m.devices[key]
	if rec == nil {
		return
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(m.devices, key)
	logger.Debugf("stopped tracking %s %s", kind, rec.name)
}

// setBusy flips a device between in-use and idle. Going busy cancels the
// timer and resumes a suspended device; going idle restarts the timeout
// from now.
func (m *Manager) setBusy(kind DeviceKind, index uint32, busy bool) {
	m.mu.Lock()
	rec := m.devices[deviceKey{kind, index}]
	if rec == nil || rec.busy == busy {
		m.mu.Unlock()
		return
	}
	rec.busy = busy
	rec.lastUse = time.Now()

	var resume bool
	if busy {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
		resume = rec.suspended
		rec.suspended = false
	} else {
		m.armLocked(rec)
	}
	name := rec.name
	m.mu.Unlock()

	if resume {
		logger.Debugf("resuming %s %s", kind, name)
		if err := m.suspender.Resume(kind, name); err != nil {
			logger.Warning(err)
		}
	}
}

func (m *Manager) armLocked(rec *deviceRecord) {
	if rec.exempt || rec.busy {
		return
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	key := deviceKey{rec.kind, rec.index}
	rec.timer = time.AfterFunc(rec.timeout, func() {
		m.onTimeout(key)
	})
}

func (m *Manager) onTimeout(key deviceKey) {
	m.mu.Lock()
	rec := m.devices[key]
	if rec == nil || rec.busy || rec.suspended || rec.exempt {
		m.mu.Unlock()
		return
	}
	rec.suspended = true
	kind, name, timeout := rec.kind, rec.name, rec.timeout
	m.mu.Unlock()

	logger.Debugf("%s %s idle for %v, suspending", kind, name, timeout)
	if err := m.suspender.Suspend(kind, name); err != nil {
		logger.Warning(err)
	}
}

func (m *Manager) handleEvents() {
	for {
		select {
		case <-m.quit:
			return
		case event := <-m.events:
			m.dispatchEvent(event)
		}
	}
}

func (m *Manager) dispatchEvent(event *pulse.Event) {
	switch event.Facility {
	case pulse.FacilitySink:
		switch event.Type {
		case pulse.EventTypeNew:
			sink, err := m.ctx.GetSink(event.Index)
			if err != nil {
				logger.Warning(err)
				return
			}
			m.track(KindSink, sink.Index, sink.Name, sink.PropList)
			m.refreshSinkActivity()
		case pulse.EventTypeRemove:
			m.untrack(KindSink, event.Index)
		}

	case pulse.FacilitySource:
		switch event.Type {
		case pulse.EventTypeNew:
			source, err := m.ctx.GetSource(event.Index)
			if err != nil {
				logger.Warning(err)
				return
			}
			if strings.HasSuffix(source.Name, ".monitor") {
				return
			}
			m.track(KindSource, source.Index, source.Name, source.PropList)
		case pulse.EventTypeRemove:
			m.untrack(KindSource, event.Index)
		}

	case pulse.FacilitySinkInput:
		// creations, removals and moves all change which sinks are in use
		m.refreshSinkActivity()
	}
}

// refreshSinkActivity recomputes which sinks carry playback streams and
// updates their busy state.
func (m *Manager) refreshSinkActivity() {
	active := make(map[uint32]bool)
	for _, sinkInput := range m.ctx.GetSinkInputList() {
		active[sinkInput.Sink] = true
	}

	m.mu.Lock()
	var sinks []uint32
	for key := range m.devices {
		if key.kind == KindSink {
			sinks = append(sinks, key.index)
		}
	}
	m.mu.Unlock()

	for _, index := range sinks {
		m.setBusy(KindSink, index, active[index])
	}
}
