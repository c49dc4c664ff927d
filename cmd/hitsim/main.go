package main

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"sidewalkd/cmd/internal/cli"
	"sidewalkd/config"
	"sidewalkd/missions"
)

// hitsim simulates HIT creation with a 1-to-1 mapping between HITs and routes:
// every region reached by a route gets the mturk mission ladder, and with
// --assign-hits every route is recorded against a HIT of the same id.
func main() {
	var assignHits bool
	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "hitsim",
		Short:         "Create mturk missions for routed regions that lack them",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cli.Setup(cmd, v)
			if err != nil {
				return err
			}
			defer env.Close()

			seeder := missions.NewSeeder(env.Store(), env.Logger)
			if assignHits {
				n, err := seeder.AssignRoutesToHits(cmd.Context())
				if err != nil {
					return fmt.Errorf("assigning routes to HITs: %w", err)
				}
				env.Logger.Infow("routes assigned to HITs", "assignments", n)
			}

			res, err := seeder.SeedMissions(cmd.Context())
			var skipped *multierror.Error
			if err != nil && (res == nil || !errors.As(err, &skipped)) {
				return fmt.Errorf("creating missions: %w", err)
			}
			env.Logger.Infow("mission seeding completed",
				"routes", res.Routes,
				"regions_seeded", len(res.SeededRegions),
				"missions_created", res.MissionsCreated,
			)
			if skipped != nil {
				for _, e := range skipped.Errors {
					env.Logger.Warnw("route skipped", "reason", e)
				}
				return fmt.Errorf("%d routes skipped: %w", len(skipped.Errors), skipped)
			}
			return nil
		},
	}
	config.AddFlags(rootCmd, v)
	rootCmd.Flags().BoolVar(&assignHits, "assign-hits", false, "Also assign every route to a HIT with the same id")

	cli.Execute(rootCmd)
}
