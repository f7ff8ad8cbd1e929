package domain

// Color is r, g, b, alpha. It encodes to JSON as a four element array.
type Color [4]uint8

// Transparent is the color of a blank cell.
var Transparent = Color{0, 0, 0, 0}

// RGBA is the object form clients use when painting a cell.
type RGBA struct {
	R     uint8 `json:"r"`
	G     uint8 `json:"g"`
	B     uint8 `json:"b"`
	Alpha uint8 `json:"alpha"`
}

func (c RGBA) Color() Color {
	return Color{c.R, c.G, c.B, c.Alpha}
}
