package main

import (
	"os"

	"github.com/LeonardoBeccarini/agri_dashboard/pkg/env"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/logging"
)

func main() {
	logging.Setup("soilctl", env.String("LOG_LEVEL", "warn"), true)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
