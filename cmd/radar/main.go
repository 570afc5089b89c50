package main

import (
	"os"

	"horse.fit/radar/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
