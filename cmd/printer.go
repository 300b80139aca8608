// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Printer formats user-facing CLI output.
var Printer = message.NewPrinter(language.English)
