// Package settings models the presentation settings stored in a bundle:
// per-annotation colours and marker shapes keyed by annotation value.
package settings

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

// Shape is a marker shape name.
type Shape string

const (
	Circle      Shape = "circle"
	CircleOpen  Shape = "circle-open"
	Cross       Shape = "cross"
	Diamond     Shape = "diamond"
	DiamondOpen Shape = "diamond-open"
	Square      Shape = "square"
	SquareOpen  Shape = "square-open"
	X           Shape = "x"
)

// Shapes is the closed set of marker shapes.
var Shapes = []Shape{Circle, CircleOpen, Cross, Diamond, DiamondOpen, Square, SquareOpen, X}

// Valid reports whether s is one of Shapes.
func (s Shape) Valid() bool {
	for _, v := range Shapes {
		if s == v {
			return true
		}
	}
	return false
}

// AnnotationStyle holds the colour and shape per annotation value.
type AnnotationStyle struct {
	Colors map[string]string `json:"colors"`
	Shapes map[string]Shape  `json:"shapes"`
}

// Settings maps annotation names to their style.
type Settings map[string]AnnotationStyle

// Validate checks every shape against the closed set.
func (s Settings) Validate() error {
	for _, name := range s.Names() {
		for value, shape := range s[name].Shapes {
			if !shape.Valid() {
				return errors.New(errors.ErrorTypeValidation,
					fmt.Sprintf("invalid shape %q for %s=%q", shape, name, value)).
					WithDetail("annotation", name).
					WithDetail("allowed", Shapes)
			}
		}
	}
	return nil
}

// Names returns the annotation names sorted.
func (s Settings) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Marshal encodes the settings as JSON after validating them.
func (s Settings) Marshal() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode settings")
	}
	return data, nil
}

// Parse decodes and validates JSON settings.
func Parse(data []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads settings from a JSON file, or from arg itself when it is an
// inline JSON object.
func Load(arg string) (Settings, error) {
	trimmed := strings.TrimSpace(arg)
	if strings.HasPrefix(trimmed, "{") {
		return Parse([]byte(trimmed))
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read settings file").
			WithDetail("path", arg)
	}
	return Parse(data)
}

// Merge returns a copy of s with overlay applied. Values present in both
// take the overlay's colour and shape.
func (s Settings) Merge(overlay Settings) Settings {
	out := s.Clone()
	if out == nil {
		out = make(Settings, len(overlay))
	}
	for name, style := range overlay {
		cur := out[name]
		if len(style.Colors) > 0 && cur.Colors == nil {
			cur.Colors = make(map[string]string, len(style.Colors))
		}
		for v, c := range style.Colors {
			cur.Colors[v] = c
		}
		if len(style.Shapes) > 0 && cur.Shapes == nil {
			cur.Shapes = make(map[string]Shape, len(style.Shapes))
		}
		for v, sh := range style.Shapes {
			cur.Shapes[v] = sh
		}
		out[name] = cur
	}
	return out
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for name, style := range s {
		var c AnnotationStyle
		if style.Colors != nil {
			c.Colors = make(map[string]string, len(style.Colors))
			for k, v := range style.Colors {
				c.Colors[k] = v
			}
		}
		if style.Shapes != nil {
			c.Shapes = make(map[string]Shape, len(style.Shapes))
			for k, v := range style.Shapes {
				c.Shapes[k] = v
			}
		}
		out[name] = c
	}
	return out
}

// NormalizeColors returns a copy with every colour converted by
// NormalizeColor.
func (s Settings) NormalizeColors() Settings {
	out := s.Clone()
	for _, style := range out {
		for v, c := range style.Colors {
			style.Colors[v] = NormalizeColor(c)
		}
	}
	return out
}

var rgbaPattern = regexp.MustCompile(`^rgba?\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)

// NormalizeColor converts "rgb(r, g, b)" and "rgba(r, g, b, a)" to
// "#RRGGBB". Other values are returned unchanged.
func NormalizeColor(c string) string {
	m := rgbaPattern.FindStringSubmatch(strings.TrimSpace(c))
	if m == nil {
		return c
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return c
		}
		rgb[i] = v
	}
	return fmt.Sprintf("#%02X%02X%02X", rgb[0], rgb[1], rgb[2])
}
