package main

import (
	"flag"
	"log"

	"hackhub/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the configuration file")
	flag.Parse()

	if err := appbootstrap.Run(*configPath); err != nil {
		log.Fatalf("hackhub: %v", err)
	}
}
