package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thehardbits/gpw/internal/hexmap"
	"github.com/thehardbits/gpw/internal/stream"
	"github.com/thehardbits/gpw/pkg/logging"
)

func newCombineCmd() *cobra.Command {
	var (
		resolution int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "combine [flags] SOURCE...",
		Short: "Combine record streams into one compacted population index",
		Long:  "Combine merges tessellated record streams into a single aggregation tree compacted down to the given floor resolution, then serializes its frontier.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCombine(cmd, resolution, output, args)
		},
	}
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 8, "floor resolution for compaction")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runCombine(cmd *cobra.Command, resolution int, output string, sources []string) error {
	logger := logging.NewLoggerWithService("gpw")

	index, err := hexmap.New(resolution)
	if err != nil {
		return err
	}

	// Open all sources and the output up front so a bad path fails
	// before any ingestion starts.
	files := make([]*os.File, 0, len(sources))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, srcPath := range sources {
		f, err := os.Open(srcPath)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		files = append(files, f)
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	abort := func() {
		out.Close()
		os.Remove(output)
	}

	for i, f := range files {
		src := sources[i]
		progress := func(records int) {
			logger.WithFields(logging.Fields{
				"source":  src,
				"records": records,
			}).Debug("Ingesting records")
		}
		if err := index.Ingest(stream.NewReader(bufio.NewReader(f)), progress); err != nil {
			abort()
			return fmt.Errorf("ingest %s: %w", src, err)
		}
		logger.WithFields(logging.Fields{
			"source":  src,
			"entries": index.Len(),
		}).Info("Source combined")
	}

	buffered := bufio.NewWriter(out)
	if err := index.WriteTo(buffered); err != nil {
		abort()
		return fmt.Errorf("write output: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		abort()
		return fmt.Errorf("write output: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(output)
		return fmt.Errorf("write output: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries at floor res %d -> %s\n",
		color.GreenString("combined"), index.Len(), resolution, output)
	return nil
}
