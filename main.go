package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/roost-social/roost/cli"
)

func main() {
	if err := cli.Run(os.Args); err != nil {
		log.Fatal(err.Error())
	}
}
