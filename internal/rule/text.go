// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

import (
	"strings"

	"grimm.is/usbwall/internal/errors"
)

// Clip returns the logical content of s inside a fixed field of bound
// bytes: at most bound bytes, cut at the first NUL.
func Clip(s string, bound int) string {
	if len(s) > bound {
		s = s[:bound]
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// TextEqual compares two fixed-width text fields over their bound.
func TextEqual(a, b string, bound int) bool {
	return Clip(a, bound) == Clip(b, bound)
}

func checkText(field, s string, bound int) error {
	if len(s) > bound {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"%s is %d bytes, limit %d", field, len(s), bound), "field", field)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return errors.Attr(errors.Wrapf(ErrInvalidRule, errors.KindValidation,
			"%s contains a NUL byte", field), "field", field)
	}
	return nil
}
