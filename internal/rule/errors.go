// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

import "grimm.is/usbwall/internal/errors"

var (
	// ErrInvalidRule reports a rule that violates construction policy,
	// such as a Rule with no valid criterion table.
	ErrInvalidRule = errors.New(errors.KindValidation, "invalid rule")

	// ErrCapacityExceeded reports a simple rule with more than
	// SimpleEntryNum entries.
	ErrCapacityExceeded = errors.New(errors.KindValidation, "simple rule capacity exceeded")
)
