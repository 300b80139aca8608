// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlm

import "grimm.is/usbwall/internal/errors"

var (
	ErrMalformedFrame     = errors.New(errors.KindValidation, "malformed frame")
	ErrUnknownOpcode      = errors.New(errors.KindValidation, "unknown opcode")
	ErrUnknownPayloadKind = errors.New(errors.KindValidation, "unknown payload kind")
	ErrQueueFull          = errors.New(errors.KindUnavailable, "message queue full")
	ErrIndexOutOfRange    = errors.New(errors.KindNotFound, "message queue index out of range")
)
