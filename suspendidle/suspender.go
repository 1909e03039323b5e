// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package suspendidle

import (
	"os/exec"

	"golang.org/x/xerrors"
)

// DeviceKind says whether a tracked device is a playback sink or a capture
// source.
type DeviceKind int

const (
	KindSink DeviceKind = iota
	KindSource
)

func (k DeviceKind) String() string {
	if k == KindSource {
		return "source"
	}
	return "sink"
}

// Suspender performs the actual suspend and resume operations on a device.
// The manager only decides when; carrying it as an interface keeps the
// policy testable.
type Suspender interface {
	Suspend(kind DeviceKind, name string) error
	Resume(kind DeviceKind, name string) error
}

// pactlSuspender drives the sound server's own pactl tool.
type pactlSuspender struct{}

func (pactlSuspender) Suspend(kind DeviceKind, name string) error {
	return runPactl(kind, name, "1")
}

func (pactlSuspender) Resume(kind DeviceKind, name string) error {
	return runPactl(kind, name, "0")
}

func runPactl(kind DeviceKind, name, state string) error {
	verb := "suspend-sink"
	if kind == KindSource {
		verb = "suspend-source"
	}
	out, err := exec.Command("pactl", verb, name, state).CombinedOutput()
	if err != nil {
		return xerrors.Errorf("pactl %s %s %s: %s: %w", verb, name, state, out, err)
	}
	return nil
}
