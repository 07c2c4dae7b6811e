package plot

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ErrUnknownColor is returned for a color that is neither an SVG color name
// nor a #rrggbb hex triplet.
var ErrUnknownColor = errors.New("unknown color")

// ParseColor resolves an SVG 1.1 color name ("blue", "lightgreen") or a
// "#rrggbb" hex string.
func ParseColor(s string) (color.Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[name]; ok {
		return c, nil
	}

	hex, ok := strings.CutPrefix(name, "#")
	if !ok || len(hex) != 6 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
