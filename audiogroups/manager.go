// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/linuxdeepin/go-lib/pulse"
	"golang.org/x/xerrors"
)

const defaultConfigFile = "/etc/sound-modules/audio-groups.conf"

// groupControl is the live volume/mute state behind an audio group, shared
// by every stream bound to it.
type groupControl struct {
	volume float64
	mute   bool
}

// Manager connects the rule engine to the sound server: it classifies
// every new playback stream against the loaded configuration and applies
// the matched group's controls.
type Manager struct {
	configFile string
	ctx        *pulse.Context

	mu       sync.Mutex
	config   *Config
	controls map[string]*groupControl
	// sink-input index -> group name, per control; presence means the
	// stream was already bound and keeps that binding
	boundVolume map[uint32]string
	boundMute   map[uint32]string

	events  chan *pulse.Event
	quit    chan struct{}
	watcher *fsnotify.Watcher
}

func newManager(configFile string) *Manager {
	if configFile == "" {
		configFile = defaultConfigFile
	}
	// the watcher reports absolute names, so compare absolute names
	if abs, err := filepath.Abs(configFile); err == nil {
		configFile = abs
	}
	return &Manager{
		configFile:  configFile,
		boundVolume: make(map[uint32]string),
		boundMute:   make(map[uint32]string),
	}
}

func (m *Manager) init() error {
	cfg, err := LoadConfig(m.configFile)
	if err != nil {
		return err
	}
	m.config = cfg
	m.controls = makeControls(cfg)

	m.ctx = pulse.GetContextForced()
	if m.ctx == nil {
		return xerrors.New("failed to connect pulseaudio")
	}

	m.events = make(chan *pulse.Event, 100)
	m.quit = make(chan struct{})
	m.ctx.AddEventChan(m.events)

	for _, sinkInput := range m.ctx.GetSinkInputList() {
		m.classifySinkInput(sinkInput)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warning("failed to watch configuration:", err)
	} else {
		// watch the directory so replace-by-rename is seen too
		err = watcher.Add(filepath.Dir(m.configFile))
		if err != nil {
			logger.Warning("failed to watch configuration:", err)
			_ = watcher.Close()
		} else {
			m.watcher = watcher
			go m.watchConfig()
		}
	}

	go m.handleEvents()
	return nil
}

func (m *Manager) destroy() {
	close(m.quit)
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	if m.ctx != nil {
		m.ctx.RemoveEventChan(m.events)
	}
}

// makeControls builds the runtime control state for every group that wants
// one. Groups with action none get no control; bind actions share the
// target group's control when it exists.
func makeControls(cfg *Config) map[string]*groupControl {
	controls := make(map[string]*groupControl)
	for name, group := range cfg.Groups {
		if group.VolumeControl.Action == ControlActionCreate ||
			group.MuteControl.Action == ControlActionCreate {
			controls[name] = &groupControl{volume: 1.0}
		}
	}
	for name, group := range cfg.Groups {
		if controls[name] != nil {
			continue
		}
		target := ""
		if group.VolumeControl.Action == ControlActionBind {
			target = group.VolumeControl.BindTarget
		} else if group.MuteControl.Action == ControlActionBind {
			target = group.MuteControl.BindTarget
		}
		if target == "" {
			continue
		}
		if shared := controls[target]; shared != nil {
			controls[name] = shared
		} else {
			logger.Warningf("group %s binds to unknown target %s", name, target)
		}
	}
	return controls
}

func (m *Manager) handleEvents() {
	for {
		select {
		case <-m.quit:
			return
		case event := <-m.events:
			if event.Facility != pulse.FacilitySinkInput {
				continue
			}
			switch event.Type {
			case pulse.EventTypeNew:
				sinkInput, err := m.ctx.GetSinkInput(event.Index)
				if err != nil {
					logger.Warning(err)
					continue
				}
				m.classifySinkInput(sinkInput)
			case pulse.EventTypeRemove:
				m.forgetSinkInput(event.Index)
			}
		}
	}
}

// classifySinkInput runs the rule engine over one playback stream and, on
// a match, applies the matched group's controls. Streams that were already
// bound keep their binding.
func (m *Manager) classifySinkInput(sinkInput *pulse.SinkInput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stream := m.config.Classify(&sinkInputCandidate{sinkInput})
	if stream == nil {
		return
	}
	logger.Debugf("sink-input %d matched stream %s", sinkInput.Index, stream.Name)

	if stream.VolumeGroup != nil {
		if _, bound := m.boundVolume[sinkInput.Index]; !bound {
			if control := m.controls[stream.VolumeGroup.Name]; control != nil {
				cv := sinkInput.Volume.SetAvg(control.volume)
				m.ctx.SetSinkInputVolume(sinkInput.Index, cv)
				m.boundVolume[sinkInput.Index] = stream.VolumeGroup.Name
			}
		}
	}
	if stream.MuteGroup != nil {
		if _, bound := m.boundMute[sinkInput.Index]; !bound {
			if control := m.controls[stream.MuteGroup.Name]; control != nil {
				m.ctx.SetSinkInputMute(sinkInput.Index, control.mute)
				m.boundMute[sinkInput.Index] = stream.MuteGroup.Name
			}
		}
	}
}

func (m *Manager) forgetSinkInput(idx uint32) {
	m.mu.Lock()
	delete(m.boundVolume, idx)
	delete(m.boundMute, idx)
	m.mu.Unlock()
}

// watchConfig reloads the configuration when the file changes. The new
// rule set replaces the old one atomically; on a parse failure the old set
// stays active.
func (m *Manager) watchConfig() {
	for {
		select {
		case <-m.quit:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != m.configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.reload()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warning("config watcher:", err)
		}
	}
}

func (m *Manager) reload() {
	if !m.reloadConfig() {
		return
	}
	for _, sinkInput := range m.ctx.GetSinkInputList() {
		m.classifySinkInput(sinkInput)
	}
}

// reloadConfig parses the configuration file again and swaps in the new
// rule set, controls and bindings as one unit. On a parse failure nothing
// changes and false is returned.
func (m *Manager) reloadConfig() bool {
	cfg, err := LoadConfig(m.configFile)
	if err != nil {
		logger.Warningf("keeping previous configuration: %v", err)
		return false
	}
	logger.Infof("configuration reloaded, %d audio groups, %d streams",
		len(cfg.Groups), len(cfg.Streams))

	m.mu.Lock()
	m.config = cfg
	m.controls = makeControls(cfg)
	m.boundVolume = make(map[uint32]string)
	m.boundMute = make(map[uint32]string)
	m.mu.Unlock()
	return true
}

// sinkInputCandidate adapts a pulse sink-input to the rule engine. Sink
// inputs are playback streams, so their direction is always output.
type sinkInputCandidate struct {
	si *pulse.SinkInput
}

func (c *sinkInputCandidate) Direction() Direction {
	return DirectionOutput
}

func (c *sinkInputCandidate) Property(name string) (string, bool) {
	value, ok := c.si.PropList[name]
	return value, ok
}
