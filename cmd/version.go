package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/mumoshu/launchpad/version"
)

func NewVersionCmd(a *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of launchpad",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.Get()
			switch format {
			case "yaml":
				bs, err := yaml.Marshal(v)
				if err != nil {
					return err
				}
				fmt.Fprint(a.Stdout, string(bs))
			default:
				fmt.Fprintf(a.Stdout, "launchpad %s (%s %s)\n", v.Version, v.GoVersion, v.Platform)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format. One of text|yaml")
	return cmd
}
