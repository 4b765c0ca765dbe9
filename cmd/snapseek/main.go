package main

import (
	"log"
	"os"

	"snapseek/internal/cli"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)
	cli.Execute()
}
