package main

import (
	"os"

	"github.com/rolemirror/rolemirror/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
