// Copyright © 2016 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	subcommands "github.com/mumoshu/launchpad/cmd/env"
	"github.com/mumoshu/launchpad/pkg/cli/env"
	"github.com/mumoshu/launchpad/pkg/config"
)

func NewEnvCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print currently selected environment",
		Long: `Print currently selected environment. The environment can be selected via the command "launchpad env set".
Settings in config/environments/<environment>.yaml override launchpad.yaml.

Example:
launchpad env set dev
launchpad env #=> Prints "dev"
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := env.New(config.AppName).In(a.dir()).Get()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Stdout, name)
			return nil
		},
	}
	cmd.AddCommand(subcommands.NewSetCmd(env.New(config.AppName).In(a.dir()), a.Stdout))
	return cmd
}
