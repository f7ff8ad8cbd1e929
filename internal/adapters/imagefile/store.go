// Package imagefile keeps the canvas in a PNG file and writes snapshot images.
package imagefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Store implements app.CanvasStore on top of an afero filesystem.
type Store struct {
	fs          afero.Fs
	canvasPath  string
	snapshotDir string
}

func NewStore(fs afero.Fs, canvasPath, snapshotDir string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, canvasPath: canvasPath, snapshotDir: snapshotDir}
}

// LoadGrid reads the canvas file. A missing, unreadable or wrongly sized
// file is replaced on disk by a blank grid, which is returned.
func (s *Store) LoadGrid(width, height int) *core.Grid {
	grid, err := s.readGrid(width, height)
	if err == nil {
		log.Info().Str("module", "imagefile").Str("path", s.canvasPath).Msg("canvas loaded")
		return grid
	}

	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("module", "imagefile").Str("path", s.canvasPath).Msg("no canvas yet, starting blank")
	} else {
		log.Error().Err(err).Str("module", "imagefile").Str("path", s.canvasPath).Msg("discarding persisted canvas")
	}
	grid = core.NewGrid(width, height)
	if err := s.DumpGrid(grid); err != nil {
		log.Error().Err(err).Str("module", "imagefile").Msg("write blank canvas")
	}
	return grid
}

func (s *Store) readGrid(width, height int) (*core.Grid, error) {
	data, err := afero.ReadFile(s.fs, s.canvasPath)
	if err != nil {
		return nil, err
	}
	colors, err := Decode(data, width, height)
	if err != nil {
		return nil, err
	}
	return core.GridFromColors(width, height, colors)
}

func (s *Store) DumpGrid(g *core.Grid) error {
	data, err := Encode(g.Snapshot(), g.Width(), g.Height())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.canvasPath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create canvas dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.canvasPath, data, 0o644); err != nil {
		return fmt.Errorf("write canvas: %w", err)
	}
	log.Info().Str("module", "imagefile").Str("path", s.canvasPath).Msg("canvas written")
	return nil
}

// WriteSnapshot stores png as <snapshotDir>/<unix seconds>.png and returns the path.
func (s *Store) WriteSnapshot(png []byte, at time.Time) (string, error) {
	if err := s.fs.MkdirAll(s.snapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	name := filepath.Join(s.snapshotDir, strconv.FormatInt(at.Unix(), 10)+".png")
	if err := afero.WriteFile(s.fs, name, png, 0o644); err != nil {
		return "", err
	}
	return name, nil
}
