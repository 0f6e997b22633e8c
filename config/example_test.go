package config_test

import (
	"context"
	"fmt"
	"log"

	"github.com/sagarc03/sigil/config"
)

func ExampleLoad() {
	// Load with defaults only (no config file)
	cfg, err := config.Load(nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Port: %d, Region: %s\n", cfg.Server.Port, cfg.Auth.Region)
	// Output: Port: 5998, Region: us-east-1
}

func ExampleWithContext() {
	cfg, _ := config.Load(nil, nil)

	// Store config in context
	ctx := config.WithContext(context.Background(), cfg)

	// Retrieve later (e.g., in a subcommand)
	retrieved, err := config.FromContext(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Retrieved backend: %s\n", retrieved.Resolver.Backend)
	// Output: Retrieved backend: static
}
