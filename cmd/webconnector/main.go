package main

import (
	"os"

	"github.com/JakeFAU/web-connector/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
