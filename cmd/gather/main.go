package main

import (
	"os"

	"horse.fit/gather/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
