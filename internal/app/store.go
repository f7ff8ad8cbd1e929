package app

import (
	"time"

	"github.com/dkeye/Canvas/internal/core"
)

// CanvasStore persists the grid between runs and keeps snapshot images.
type CanvasStore interface {
	// LoadGrid never fails: unreadable state is replaced by a blank grid.
	LoadGrid(width, height int) *core.Grid
	DumpGrid(g *core.Grid) error
	WriteSnapshot(png []byte, at time.Time) (string, error)
}
