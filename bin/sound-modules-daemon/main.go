// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"

	// modules:
	_ "github.com/lumosound/sound-modules/audiogroups"
	_ "github.com/lumosound/sound-modules/bluetooth"
	_ "github.com/lumosound/sound-modules/suspendidle"

	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/lumosound/sound-modules/loader"
)

const dbusServiceName = "com.lumosound.SoundModules"

var logger = log.NewLogger("daemon/sound-modules")

func main() {
	service, err := dbusutil.NewSystemService()
	if err != nil {
		logger.Fatal("failed to new system service:", err)
	}

	hasOwner, err := service.NameHasOwner(dbusServiceName)
	if err != nil {
		logger.Fatal("failed to call NameHasOwner:", err)
	}
	if hasOwner {
		logger.Warningf("name %q already has the owner", dbusServiceName)
		os.Exit(1)
	}

	err = service.RequestName(dbusServiceName)
	if err != nil {
		logger.Fatal("failed to request name:", err)
	}

	if os.Getenv("SOUND_MODULES_DEBUG") != "" {
		loader.SetLogLevel(log.LevelDebug)
	}

	loader.SetService(service)
	loader.StartAll()
	defer loader.StopAll()

	service.Wait()
}
