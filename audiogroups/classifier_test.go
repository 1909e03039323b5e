// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, rule string) Expression {
	t.Helper()
	expr, err := ParseRule(rule)
	require.NoError(t, err)
	return expr
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// both entries match the candidate; the first declared one wins
	cfg := &Config{
		Streams: []*Stream{
			{Name: "first", Rule: mustParse(t, "(direction output)")},
			{Name: "second", Rule: mustParse(t, "(property media.role=music)")},
		},
	}

	cand := &fakeCandidate{
		direction: DirectionOutput,
		props:     map[string]string{"media.role": "music"},
	}
	stream := cfg.Classify(cand)
	require.NotNil(t, stream)
	assert.Equal(t, "first", stream.Name)
}

func TestClassifyDeclaredOrderIsPriority(t *testing.T) {
	cfg := &Config{
		Streams: []*Stream{
			{Name: "phone", Rule: mustParse(t, "(property media.role=phone)")},
			{Name: "any-output", Rule: mustParse(t, "(direction output)")},
		},
	}

	phone := cfg.Classify(&fakeCandidate{
		direction: DirectionOutput,
		props:     map[string]string{"media.role": "phone"},
	})
	require.NotNil(t, phone)
	assert.Equal(t, "phone", phone.Name)

	music := cfg.Classify(&fakeCandidate{
		direction: DirectionOutput,
		props:     map[string]string{"media.role": "music"},
	})
	require.NotNil(t, music)
	assert.Equal(t, "any-output", music.Name)
}

func TestClassifyNoMatch(t *testing.T) {
	cfg := &Config{
		Streams: []*Stream{
			{Name: "inputs", Rule: mustParse(t, "(direction input)")},
		},
	}
	assert.Nil(t, cfg.Classify(&fakeCandidate{direction: DirectionOutput}))
}

func TestClassifySkipsRulelessEntries(t *testing.T) {
	cfg := &Config{
		Streams: []*Stream{
			{Name: "no-rule"},
			{Name: "outputs", Rule: mustParse(t, "(direction output)")},
		},
	}
	stream := cfg.Classify(&fakeCandidate{direction: DirectionOutput})
	require.NotNil(t, stream)
	assert.Equal(t, "outputs", stream.Name)
}

func TestMakeControls(t *testing.T) {
	cfg := &Config{
		Groups: map[string]*AudioGroup{
			"music": {
				Name:          "music",
				VolumeControl: ControlSetting{Action: ControlActionCreate},
			},
			"notifications": {
				Name:          "notifications",
				VolumeControl: ControlSetting{Action: ControlActionBind, BindTarget: "music"},
			},
			"silent": {
				Name: "silent",
			},
			"dangling": {
				Name:          "dangling",
				VolumeControl: ControlSetting{Action: ControlActionBind, BindTarget: "ghost"},
			},
		},
	}

	controls := makeControls(cfg)
	require.NotNil(t, controls["music"])
	assert.Equal(t, 1.0, controls["music"].volume)
	// bind shares the target's control
	assert.Same(t, controls["music"], controls["notifications"])
	assert.Nil(t, controls["silent"])
	assert.Nil(t, controls["dangling"])
}
