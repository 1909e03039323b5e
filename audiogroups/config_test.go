// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio-groups.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("testdata/audio-groups.conf")
	require.NoError(t, err)

	// listed groups are present, the unlisted one is dropped
	require.Len(t, cfg.Groups, 3)
	assert.Nil(t, cfg.Groups["unlisted"])

	music := cfg.Groups["music"]
	require.NotNil(t, music)
	assert.Equal(t, "Music playback", music.Description)
	assert.Equal(t, ControlActionCreate, music.VolumeControl.Action)
	assert.Equal(t, ControlActionCreate, music.MuteControl.Action)

	notifications := cfg.Groups["notifications"]
	require.NotNil(t, notifications)
	assert.Equal(t, ControlActionBind, notifications.VolumeControl.Action)
	assert.Equal(t, "music", notifications.VolumeControl.BindTarget)
	assert.Equal(t, ControlActionNone, notifications.MuteControl.Action)

	// a group section with no description defaults to its name
	phone := cfg.Groups["phone"]
	require.NotNil(t, phone)
	assert.Equal(t, "phone", phone.Description)

	// ghost-stream was never defined and broken-stream has a bad rule;
	// both disappear without failing the load
	require.Len(t, cfg.Streams, 2)
	assert.Equal(t, "music-stream", cfg.Streams[0].Name)
	assert.Equal(t, "notification-stream", cfg.Streams[1].Name)

	assert.Same(t, music, cfg.Streams[0].VolumeGroup)
	assert.Same(t, music, cfg.Streams[0].MuteGroup)
	assert.Same(t, notifications, cfg.Streams[1].VolumeGroup)
	assert.Nil(t, cfg.Streams[1].MuteGroup)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.conf"))
	require.Error(t, err)
}

func TestLoadConfigUnknownSection(t *testing.T) {
	path := writeConfig(t, `[General]
streams=a

[Bogus]
key=value
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section")
}

func TestLoadConfigBadControlValue(t *testing.T) {
	path := writeConfig(t, `[General]
audio-groups=music

[AudioGroup music]
volume-control=sometimes
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse control value")
}

func TestLoadConfigEmptyBindTarget(t *testing.T) {
	path := writeConfig(t, `[General]
audio-groups=music

[AudioGroup music]
mute-control=bind:
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigDanglingGroupReference(t *testing.T) {
	path := writeConfig(t, `[General]
streams=player

[Stream player]
audio-group-for-volume=missing
match=(direction output)
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Streams, 1)
	assert.Equal(t, "missing", cfg.Streams[0].GroupNameForVolume)
	assert.Nil(t, cfg.Streams[0].VolumeGroup)
}

func TestLoadConfigDuplicateStreamNames(t *testing.T) {
	path := writeConfig(t, `[General]
streams=player player

[Stream player]
match=(direction output)
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Streams, 1)
}

func TestLoadConfigStreamWithoutRule(t *testing.T) {
	path := writeConfig(t, `[General]
streams=silent

[Stream silent]
audio-group-for-volume=
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Streams, 1)
	assert.Nil(t, cfg.Streams[0].Rule)

	// an entry without a rule never matches anything
	assert.Nil(t, cfg.Classify(&fakeCandidate{direction: DirectionOutput}))
}
