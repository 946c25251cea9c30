package ops

import (
	"fmt"
	"os"

	"github.com/darrenldl/blockyarchive-sub000/rescue"
)

// RescueOptions configures Rescue.
type RescueOptions struct {
	InputPath     string
	OutputDir     string
	ForceMisalign bool
	Filter        rescue.BlockFilter
	LogPath       string // optional; empty disables resume/persistence
	FromPos       int64
	ToPos         int64
}

// Rescue scans InputPath, over the FromPos/ToPos window, for recognisable blocks, writing each
// to a per-UID file under OutputDir, and returns the final scan Stats.
func Rescue(opts RescueOptions) (rescue.Stats, error) {
	in, err := os.Open(opts.InputPath)
	if err != nil {
		return rescue.Stats{}, fmt.Errorf("ops: opening input: %w", err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return rescue.Stats{}, fmt.Errorf("ops: statting input: %w", err)
	}

	var log *rescue.Log
	if opts.LogPath != "" {
		log = rescue.NewLog(opts.LogPath)
	}

	s, err := rescue.NewScanner(in, rescue.Options{
		OutputDir:     opts.OutputDir,
		ForceMisalign: opts.ForceMisalign,
		Filter:        opts.Filter,
		Log:           log,
		FromPos:       opts.FromPos,
		ToPos:         opts.ToPos,
	})
	if err != nil {
		return rescue.Stats{}, err
	}
	defer s.Close()

	if err := s.Run(fi.Size()); err != nil {
		return s.Stats(), err
	}

	return s.Stats(), nil
}
