package labels

import (
	"image/color"
	"strings"
)

// Category is a visual overlay class with a fixed color
type Category struct {
	Name  string
	Color color.NRGBA
}

// Overlay categories
var (
	TrafficLight = Category{Name: "TRAFFIC LIGHT", Color: color.NRGBA{R: 255, G: 230, B: 0, A: 200}}
	Vehicle      = Category{Name: "VEHICLE", Color: color.NRGBA{R: 0, G: 255, B: 100, A: 160}}
)

var byLabel = map[string]Category{
	"traffic light": TrafficLight,
	"traffic_light": TrafficLight,
	"car":           Vehicle,
	"truck":         Vehicle,
	"bus":           Vehicle,
	"motorcycle":    Vehicle,
	"bicycle":       Vehicle,
}

// Classify maps a model label to its overlay category, ignoring case and
// surrounding whitespace. Labels without a category return false and are not
// drawn.
func Classify(label string) (Category, bool) {
	c, ok := byLabel[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

// Categories returns every overlay category in display order
func Categories() []Category {
	return []Category{TrafficLight, Vehicle}
}
