package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thehardbits/gpw/internal/gpwascii"
	"github.com/thehardbits/gpw/internal/tess"
	"github.com/thehardbits/gpw/pkg/logging"
)

func newTessellateCmd() *cobra.Command {
	var (
		resolution int
		outdir     string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "tessellate [flags] SOURCE...",
		Short: "Tessellate GPW ASCII grids into H3 record streams",
		Long:  "Tessellate parses each GPW ASCII grid and writes one record stream per source: one 12-byte (cell, value) record per covering hex cell.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTessellate(cmd, resolution, outdir, workers, args)
		},
	}
	cmd.Flags().IntVarP(&resolution, "resolution", "r", tess.Resolution, "resolution recorded in output file names")
	cmd.Flags().StringVarP(&outdir, "outdir", "o", ".", "output directory")
	cmd.Flags().IntVar(&workers, "workers", 0, "tessellation worker limit (0 = number of CPUs)")
	return cmd
}

type tessJob struct {
	srcPath string
	dstPath string
	src     *os.File
	dst     *os.File
}

func runTessellate(cmd *cobra.Command, resolution int, outdir string, workers int, sources []string) error {
	logger := logging.NewLoggerWithService("gpw")

	// Open every source and destination up front so a bad path fails
	// before any grid is parsed.
	jobs := make([]tessJob, 0, len(sources))
	abort := func() {
		for _, job := range jobs {
			job.src.Close()
			job.dst.Close()
			os.Remove(job.dstPath)
		}
	}
	for _, srcPath := range sources {
		src, err := os.Open(srcPath)
		if err != nil {
			abort()
			return fmt.Errorf("open source: %w", err)
		}
		dstPath := outputPath(outdir, srcPath, resolution)
		dst, err := os.Create(dstPath)
		if err != nil {
			src.Close()
			abort()
			return fmt.Errorf("create output: %w", err)
		}
		jobs = append(jobs, tessJob{srcPath: srcPath, dstPath: dstPath, src: src, dst: dst})
	}

	tessellator := &tess.Tessellator{Workers: workers}
	for i, job := range jobs {
		logger.WithField("source", job.srcPath).Info("Parsing grid")
		if err := tessellateOne(cmd.Context(), tessellator, job); err != nil {
			// The failing output is invalid; completed ones stand.
			for _, rest := range jobs[i:] {
				rest.src.Close()
				rest.dst.Close()
				os.Remove(rest.dstPath)
			}
			return fmt.Errorf("tessellate %s: %w", job.srcPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n",
			color.GreenString("tessellated"), job.srcPath, job.dstPath)
	}
	return nil
}

func tessellateOne(ctx context.Context, tessellator *tess.Tessellator, job tessJob) error {
	defer job.src.Close()

	grid, err := gpwascii.Parse(bufio.NewReader(job.src))
	if err != nil {
		job.dst.Close()
		return err
	}

	buffered := bufio.NewWriter(job.dst)
	if err := tessellator.Stream(ctx, grid, buffered); err != nil {
		job.dst.Close()
		return err
	}
	if err := buffered.Flush(); err != nil {
		job.dst.Close()
		return err
	}
	return job.dst.Close()
}

// outputPath derives the record stream path: the source base name with
// its extension swapped for .res<N>.h3tess, placed in outdir.
func outputPath(outdir, srcPath string, resolution int) string {
	base := filepath.Base(srcPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outdir, fmt.Sprintf("%s.res%d.h3tess", base, resolution))
}
