package main

import (
	"github.com/joho/godotenv"

	"github.com/agrimet-labs/climate-hazard-etl/internal/cli"
)

var version = "dev"

func main() {
	_ = godotenv.Load() // ignore missing file

	cli.Execute(version)
}
