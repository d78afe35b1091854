package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mumoshu/launchpad/pkg/plan"
)

func addAppFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("app-dir", "", "directory the app runs in")
	flags.String("address", "", "address the app listens on")
	flags.Int("port", 0, "port the app listens on")
	flags.Duration("grace", 0, "how long stopped processes get to exit before they are killed")
}

func NewArchiveCmd(a *App) *cobra.Command {
	var (
		o             launchOpts
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "archive [SOURCE]",
		Short: "Extract a password protected archive and run the app inside it",
		Long: `Fetch SOURCE, extract it into a temporary directory, activate the virtualenv
shipped inside it and run the app. The directory is removed when the app exits.

The password is read from archive.password, LAUNCHPAD_ARCHIVE_PASSWORD or
--password-stdin, and is prompted for when none is set and stdin is a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.set("archive.source", args[0])
				a.Config.Archive.Source = args[0]
			}
			if err := a.Config.ValidateArchive(); err != nil {
				return invalid(err)
			}
			if err := a.ensurePassword(passwordStdin); err != nil {
				return err
			}
			def, err := plan.Archive(a.Config)
			if err != nil {
				return err
			}
			return a.launch(def, o)
		},
	}

	flags := cmd.Flags()
	flags.String("password", "", "archive password. Prefer --password-stdin or LAUNCHPAD_ARCHIVE_PASSWORD")
	flags.BoolVar(&passwordStdin, "password-stdin", false, "read the archive password from stdin")
	flags.String("tool", "", "archive tool to extract with")
	flags.Bool("keep-work-dir", false, "keep the extracted files after the app exits")
	flags.BoolVar(&o.autoEnv, "autoenv", false, "export every configuration value to the steps as LAUNCHPAD_<KEY>")
	addAppFlags(cmd)
	return cmd
}
