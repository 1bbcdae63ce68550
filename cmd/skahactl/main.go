package main

import (
	"os"

	skahacmd "github.com/opencadc/skahactl/pkg/skahactl/cmd"
)

func run(args []string) int {
	root := skahacmd.NewRootCommand(skahacmd.DefaultConfig())
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
