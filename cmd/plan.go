package cmd

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mumoshu/launchpad/pkg/plan"
)

func NewPlanCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect launch plans",
	}
	cmd.AddCommand(newPlanValidateCmd(a), newPlanShowCmd(a))
	return cmd
}

// resolvePlan loads a plan file, or builds one of the built-in plans when src
// names it.
func (a *App) resolvePlan(src string) (*plan.Def, error) {
	switch src {
	case "archive":
		return plan.Archive(a.Config)
	case "proxy":
		return plan.Proxy(a.Config)
	}
	return plan.Load(a.context(), src)
}

func newPlanValidateCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PLAN...",
		Short: "Check launch plans without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result error
			for _, src := range args {
				def, err := a.resolvePlan(src)
				if err == nil {
					_, err = def.Build(&plan.BuildContext{Log: a.Log.WithField("plan", src)})
				}
				if err != nil {
					fmt.Fprintf(a.Stdout, "%s: invalid\n", src)
					result = multierror.Append(result, err)
					continue
				}
				fmt.Fprintf(a.Stdout, "%s: ok (%d steps)\n", src, len(def.Steps))
			}
			if result != nil {
				return invalid(result)
			}
			return nil
		},
	}
}

func newPlanShowCmd(a *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show PLAN",
		Short: "Print a launch plan. PLAN may be archive or proxy for the built-in plans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.resolvePlan(args[0])
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				out, err := def.YAML()
				if err != nil {
					return err
				}
				fmt.Fprint(a.Stdout, out)
			case "pretty":
				fmt.Fprintln(a.Stdout, def.Pretty())
			default:
				return invalid(errors.Errorf("unexpected format %q, use one of yaml|pretty", format))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format. One of yaml|pretty")
	cmd.Flags().String("app-dir", "", "directory the app runs in")
	cmd.Flags().Int("port", 0, "port the app listens on")
	return cmd
}
