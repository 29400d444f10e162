// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"strings"

	"github.com/pkg/errors"
)

// Template fragments travel embedded in marker comments so they survive
// inside HTML documents. Backslashes and dashes in the content are
// backslash-escaped so the payload can never terminate the comment early.
const (
	fragmentPrefix = "<!--[pagelet]"
	fragmentSuffix = "[/pagelet]-->"
)

// WrapFragment wraps view content in a marker comment, escaping it so the
// wrapped text round-trips through ParseFragment unchanged.
func WrapFragment(view string) string {
	var sb strings.Builder
	sb.Grow(len(view) + len(fragmentPrefix) + len(fragmentSuffix))
	sb.WriteString(fragmentPrefix)
	for i := 0; i < len(view); i++ {
		if view[i] == '\\' || view[i] == '-' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(view[i])
	}
	sb.WriteString(fragmentSuffix)
	return sb.String()
}

// ParseFragment extracts the view content from a marker-wrapped fragment,
// collapsing each escaped backslash sequence to the escaped character.
func ParseFragment(s string) (string, error) {
	inner, ok := strings.CutPrefix(s, fragmentPrefix)
	if !ok {
		return "", errors.WithStack(BadFragmentError{})
	}
	inner, ok = strings.CutSuffix(inner, fragmentSuffix)
	if !ok {
		return "", errors.WithStack(BadFragmentError{})
	}
	var sb strings.Builder
	sb.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' {
			i++
			if i >= len(inner) {
				return "", errors.WithStack(BadFragmentError{})
			}
		}
		sb.WriteByte(inner[i])
	}
	return sb.String(), nil
}
