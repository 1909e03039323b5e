// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

import (
	"fmt"
	"strings"

	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/strv"
	"golang.org/x/xerrors"
)

const (
	sectionGeneral     = "General"
	sectionGroupPrefix = "AudioGroup "

	sectionStreamPrefix = "Stream "

	bindKeyword = "bind:"
)

// ControlAction says what to do about a group's volume or mute control.
type ControlAction int

const (
	// ControlActionNone leaves the control unset.
	ControlActionNone ControlAction = iota
	// ControlActionCreate gives the group its own control.
	ControlActionCreate
	// ControlActionBind binds the control to another target.
	ControlActionBind
)

// ControlSetting pairs a control action with its bind target. BindTarget is
// only meaningful when Action is ControlActionBind.
type ControlSetting struct {
	Action     ControlAction
	BindTarget string
}

func parseControlSetting(value string) (ControlSetting, error) {
	switch {
	case value == "none":
		return ControlSetting{Action: ControlActionNone}, nil
	case value == "create":
		return ControlSetting{Action: ControlActionCreate}, nil
	case strings.HasPrefix(value, bindKeyword):
		target := value[len(bindKeyword):]
		if target == "" {
			return ControlSetting{}, fmt.Errorf("empty binding target in %q", value)
		}
		return ControlSetting{Action: ControlActionBind, BindTarget: target}, nil
	}
	return ControlSetting{}, fmt.Errorf("failed to parse control value %q", value)
}

// AudioGroup is a named volume/mute target that stream entries bind to.
type AudioGroup struct {
	Name          string
	Description   string
	VolumeControl ControlSetting
	MuteControl   ControlSetting
}

// Stream is one named classification entry: a match rule plus the audio
// groups its volume and mute controls bind to. VolumeGroup and MuteGroup
// are resolved from the name references after all groups are known; a
// dangling reference leaves them nil.
type Stream struct {
	Name               string
	Rule               Expression
	GroupNameForVolume string
	GroupNameForMute   string
	VolumeGroup        *AudioGroup
	MuteGroup          *AudioGroup
}

// Config is a loaded audio-groups configuration. Streams keeps the
// declared order of the [General] streams key, which is the match priority
// order. Immutable after LoadConfig returns.
type Config struct {
	Groups  map[string]*AudioGroup
	Streams []*Stream
}

// LoadConfig reads and resolves an audio-groups configuration file. File
// structure errors and malformed control values abort the load; a broken
// match rule drops only its own stream entry.
func LoadConfig(path string) (*Config, error) {
	kf := keyfile.NewKeyFile()
	if err := kf.LoadFromFile(path); err != nil {
		return nil, xerrors.Errorf("load %s: %w", path, err)
	}
	cfg, err := buildConfig(kf)
	if err != nil {
		return nil, xerrors.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func buildConfig(kf *keyfile.KeyFile) (*Config, error) {
	declaredGroups := make(map[string]*AudioGroup)
	declaredStreams := make(map[string]*Stream)
	droppedStreams := make(map[string]bool)

	for _, section := range kf.GetSections() {
		switch {
		case section == sectionGeneral:
			// name lists, handled after all definitions are in

		case strings.HasPrefix(section, sectionGroupPrefix):
			name := section[len(sectionGroupPrefix):]
			group := &AudioGroup{Name: name, Description: name}
			if desc, err := kf.GetString(section, "description"); err == nil {
				group.Description = desc
			}
			if value, err := kf.GetString(section, "volume-control"); err == nil {
				setting, err := parseControlSetting(value)
				if err != nil {
					return nil, err
				}
				group.VolumeControl = setting
			}
			if value, err := kf.GetString(section, "mute-control"); err == nil {
				setting, err := parseControlSetting(value)
				if err != nil {
					return nil, err
				}
				group.MuteControl = setting
			}
			declaredGroups[name] = group

		case strings.HasPrefix(section, sectionStreamPrefix):
			name := section[len(sectionStreamPrefix):]
			stream := &Stream{Name: name}
			if value, err := kf.GetString(section, "audio-group-for-volume"); err == nil {
				stream.GroupNameForVolume = value
			}
			if value, err := kf.GetString(section, "audio-group-for-mute"); err == nil {
				stream.GroupNameForMute = value
			}
			if rule, err := kf.GetString(section, "match"); err == nil {
				expr, err := ParseRule(rule)
				if err != nil {
					logger.Warningf("stream %s has a broken match rule, dropping the entry: %v",
						name, err)
					droppedStreams[name] = true
					continue
				}
				stream.Rule = expr
			}
			declaredStreams[name] = stream

		default:
			return nil, fmt.Errorf("unknown section %q", section)
		}
	}

	groupList, _ := kf.GetString(sectionGeneral, "audio-groups")
	streamList, _ := kf.GetString(sectionGeneral, "streams")

	cfg := &Config{Groups: make(map[string]*AudioGroup)}

	for _, name := range strings.Fields(groupList) {
		group := declaredGroups[name]
		if group == nil {
			// listed but never defined, still gets a default group
			group = &AudioGroup{Name: name, Description: name}
		}
		cfg.Groups[name] = group
	}
	for name := range declaredGroups {
		if cfg.Groups[name] == nil {
			logger.Debugf("audio group %s is not used", name)
		}
	}

	var seen strv.Strv
	for _, name := range strings.Fields(streamList) {
		if seen.Contains(name) {
			continue
		}
		seen = append(seen, name)

		if droppedStreams[name] {
			continue
		}
		stream := declaredStreams[name]
		if stream == nil {
			logger.Warningf("reference to undefined stream %s, ignoring", name)
			continue
		}

		if stream.GroupNameForVolume != "" {
			stream.VolumeGroup = cfg.Groups[stream.GroupNameForVolume]
			if stream.VolumeGroup == nil {
				logger.Warningf("stream %s refers to undefined audio group %s",
					stream.Name, stream.GroupNameForVolume)
			}
		}
		if stream.GroupNameForMute != "" {
			stream.MuteGroup = cfg.Groups[stream.GroupNameForMute]
			if stream.MuteGroup == nil {
				logger.Warningf("stream %s refers to undefined audio group %s",
					stream.Name, stream.GroupNameForMute)
			}
		}

		cfg.Streams = append(cfg.Streams, stream)
	}
	for name := range declaredStreams {
		if !seen.Contains(name) {
			logger.Debugf("stream %s is not used", name)
		}
	}

	return cfg, nil
}
