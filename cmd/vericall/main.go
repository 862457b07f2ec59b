package main

import (
	"log"

	"github.com/vericall/vericall/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
