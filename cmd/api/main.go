package main

import (
	"context"
	"log"

	"rebalanceadvisor/cmd"
)

func main() {
	deps, err := cmd.InitializeDependencies(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	defer cmd.CloseDependencies(deps)

	if err := deps.ApiHandler.StartApi(deps.Config.Port); err != nil {
		log.Fatal(err)
	}
}
