// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlm

import (
	"fmt"
	"strings"
)

const hexBytesPerLine = 20

// HexDump renders b as offset-prefixed rows of 20 hex bytes, for debug logs.
func HexDump(b []byte) string {
	var sb strings.Builder
	for off := 0; off < len(b); off += hexBytesPerLine {
		end := min(off+hexBytesPerLine, len(b))
		fmt.Fprintf(&sb, "%04x:", off)
		for _, c := range b[off:end] {
			fmt.Fprintf(&sb, " %02x", c)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
