package core

import (
	"fmt"

	"github.com/dkeye/Canvas/internal/domain"
)

// Grid is the fixed width*height array of cell colors.
// Not safe for concurrent use; the canvas loop is its only writer.
type Grid struct {
	width  int
	height int
	cells  []domain.Color
}

// NewGrid returns an all transparent grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]domain.Color, width*height),
	}
}

// GridFromColors wraps an existing color sequence. len(colors) must be width*height.
func GridFromColors(width, height int, colors []domain.Color) (*Grid, error) {
	if len(colors) != width*height {
		return nil, fmt.Errorf("grid %dx%d needs %d cells, got %d: %w",
			width, height, width*height, len(colors), domain.ErrCorruptCanvas)
	}
	cells := make([]domain.Color, len(colors))
	copy(cells, colors)
	return &Grid{width: width, height: height, cells: cells}, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }
func (g *Grid) Len() int    { return len(g.cells) }

// IndexOf maps a position to a cell index, rejecting positions off the grid.
func (g *Grid) IndexOf(p domain.Position) (int, error) {
	if p.Row < 0 || p.Row >= g.height || p.Column < 0 || p.Column >= g.width {
		return 0, fmt.Errorf("row %d column %d: %w", p.Row, p.Column, domain.ErrCellOutOfRange)
	}
	return p.Index(g.width), nil
}

func (g *Grid) Get(index int) (domain.Color, error) {
	if index < 0 || index >= len(g.cells) {
		return domain.Color{}, fmt.Errorf("index %d: %w", index, domain.ErrCellOutOfRange)
	}
	return g.cells[index], nil
}

func (g *Grid) Set(index int, c domain.Color) error {
	if index < 0 || index >= len(g.cells) {
		return fmt.Errorf("index %d: %w", index, domain.ErrCellOutOfRange)
	}
	g.cells[index] = c
	return nil
}

// Fill paints every cell with c.
func (g *Grid) Fill(c domain.Color) {
	for i := range g.cells {
		g.cells[i] = c
	}
}

// Snapshot returns a copy of all cells in index order.
func (g *Grid) Snapshot() []domain.Color {
	out := make([]domain.Color, len(g.cells))
	copy(out, g.cells)
	return out
}
