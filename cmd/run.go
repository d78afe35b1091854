package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mumoshu/launchpad/pkg/plan"
)

func NewRunCmd(a *App) *cobra.Command {
	var o launchOpts
	cmd := &cobra.Command{
		Use:   "run PLAN",
		Short: "Run a launch plan",
		Long: `Run the steps of a launch plan and tear down everything they acquired once
the last step returns.

PLAN is a local file or any source go-getter understands, like
git::https://github.com/example/plans//launch.yaml?ref=v1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := plan.Load(a.context(), args[0])
			if err != nil {
				return err
			}
			return a.launch(def, o)
		},
	}
	cmd.Flags().BoolVar(&o.autoEnv, "autoenv", false, "export every configuration value to the steps as LAUNCHPAD_<KEY>")
	return cmd
}
