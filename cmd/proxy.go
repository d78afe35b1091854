package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mumoshu/launchpad/pkg/plan"
)

func NewProxyCmd(a *App) *cobra.Command {
	var o launchOpts
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the app behind a reverse proxy",
		Long: `Test the reverse proxy's configuration, start it, wait for its process to
show up, open a browser and run the app. The proxy is terminated when the app
exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Config.ValidateProxy(); err != nil {
				return invalid(err)
			}
			def, err := plan.Proxy(a.Config)
			if err != nil {
				return err
			}
			return a.launch(def, o)
		},
	}

	flags := cmd.Flags()
	flags.String("proxy-dir", "", "directory the proxy runs in")
	flags.String("proxy-binary", "", "proxy executable")
	flags.Bool("open-browser", true, "open the app in a browser once the proxy is up")
	flags.BoolVar(&o.autoEnv, "autoenv", false, "export every configuration value to the steps as LAUNCHPAD_<KEY>")
	addAppFlags(cmd)
	return cmd
}
