package livesync

import (
	"fmt"
	"strings"
)

// ViewMode is how the selected render is displayed. It is local UI state.
type ViewMode string

const (
	ViewDesktop ViewMode = "desktop"
	ViewMobile  ViewMode = "mobile"
	ViewHTML    ViewMode = "html"
)

// ViewModes lists the modes in cycling order.
var ViewModes = []ViewMode{ViewDesktop, ViewMobile, ViewHTML}

// ParseViewMode parses a mode name, case-insensitively.
func ParseViewMode(s string) (ViewMode, error) {
	for _, m := range ViewModes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown view mode %q (want desktop, mobile or html)", s)
}

// Next returns the following mode, wrapping around.
func (m ViewMode) Next() ViewMode {
	return m.step(1)
}

// Previous returns the preceding mode, wrapping around.
func (m ViewMode) Previous() ViewMode {
	return m.step(len(ViewModes) - 1)
}

func (m ViewMode) step(n int) ViewMode {
	for i, v := range ViewModes {
		if v == m {
			return ViewModes[(i+n)%len(ViewModes)]
		}
	}
	return ViewDesktop
}

// String implements pflag.Value.
func (m *ViewMode) String() string {
	if m == nil || *m == "" {
		return string(ViewDesktop)
	}
	return string(*m)
}

// Set implements pflag.Value.
func (m *ViewMode) Set(s string) error {
	parsed, err := ParseViewMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *ViewMode) Type() string {
	return "desktop|mobile|html"
}
