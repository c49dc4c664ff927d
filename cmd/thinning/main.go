package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sidewalkd/cmd/internal/cli"
	"sidewalkd/config"
	"sidewalkd/thinning"
)

func main() {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:   "thinning",
		Short: "Recompute the minimum zoom level at which each label is shown",
		Long: `thinning ranks the labels of every label type by severity and assigns each
one the coarsest map zoom level whose visibility budget covers its rank. The
budget at the finest level is the label count; every coarser level keeps a
sampling-degree fraction of the level below. label_presampled is replaced in a
single transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cli.Setup(cmd, v)
			if err != nil {
				return err
			}
			defer env.Close()

			opts, err := env.Config.ThinningOptions()
			if err != nil {
				return err
			}
			res, err := thinning.Run(cmd.Context(), env.Store(), env.Logger, opts)
			if err != nil {
				return fmt.Errorf("thinning failed: %w", err)
			}
			env.Logger.Infow("thinning completed",
				"labels", len(res.Assignments),
				"rows", res.Rows,
				"labels_by_min_zoom", thinning.Histogram(res.Assignments, res.Budget.Levels()),
			)
			return nil
		},
	}
	config.AddFlags(rootCmd, v)

	f := rootCmd.Flags()
	d := thinning.DefaultOptions
	f.Int("zoom-levels", d.ZoomLevels, "Number of map zoom levels")
	f.Float64("sampling-degree", d.SamplingDegree, "Fraction of labels kept per coarser zoom level, in (0, 1)")
	f.String("mode", string(d.Mode), "Rows to store per label: cumulative (every visible level) or minimum")
	f.Int("batch-size", d.BatchSize, "Rows per INSERT statement")
	f.Bool("split-tables", false, "Also rebuild one label_presampled_z<N> table per zoom level")
	f.Bool("dry-run", false, "Compute assignments without writing them")
	config.BindFlags(v, rootCmd, map[string]string{
		"thinning.zoom_levels":     "zoom-levels",
		"thinning.sampling_degree": "sampling-degree",
		"thinning.mode":            "mode",
		"thinning.batch_size":      "batch-size",
		"thinning.split_tables":    "split-tables",
		"thinning.dry_run":         "dry-run",
	})

	rootCmd.AddCommand(newBenchCmd(v))
	cli.Execute(rootCmd)
}

func newBenchCmd(v *viper.Viper) *cobra.Command {
	benchCmd := &cobra.Command{
		Use:           "bench",
		Short:         "Time the presampled bounding-box query with and without the lat/lng index",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cli.Setup(cmd, v)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := thinning.BenchmarkIndex(cmd.Context(), env.Store(), env.Logger, env.Config.BenchOptions())
			if err != nil {
				return fmt.Errorf("benchmark failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Query time without index = %s\nQuery time with index = %s\n", res.WithoutIndex, res.WithIndex)
			return nil
		},
	}
	f := benchCmd.Flags()
	d := thinning.DefaultBenchOptions
	f.Int("iterations", d.Iterations, "Number of times each query runs")
	f.Int("zoom", -1, "Zoom level to query, -1 for the finest level")
	f.Float64("min-lat", d.Box.MinLat, "Southern edge of the query box")
	f.Float64("max-lat", d.Box.MaxLat, "Northern edge of the query box")
	f.Float64("min-lng", d.Box.MinLng, "Western edge of the query box")
	f.Float64("max-lng", d.Box.MaxLng, "Eastern edge of the query box")
	f.Bool("keep-index", false, "Leave the index in place afterwards")
	config.BindFlags(v, benchCmd, map[string]string{
		"bench.iterations": "iterations",
		"bench.zoom_level": "zoom",
		"bench.min_lat":    "min-lat",
		"bench.max_lat":    "max-lat",
		"bench.min_lng":    "min-lng",
		"bench.max_lng":    "max-lng",
		"bench.keep_index": "keep-index",
	})
	return benchCmd
}
