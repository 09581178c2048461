package main

import (
	"os"

	"kitvision/internal/cli"
	"kitvision/internal/cli/detect"
)

func main() {
	if err := cli.Execute(detect.NewDetectCommand()); err != nil {
		os.Exit(1)
	}
}
