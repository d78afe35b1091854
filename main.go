package main

import (
	"github.com/mumoshu/launchpad/cmd"
)

func main() {
	cmd.MustRun()
}
