// Package main is the entry point for the MedQA service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/medqa/cmd/medqa/app"
)

func main() {
	app.NewApp().Run()
}
