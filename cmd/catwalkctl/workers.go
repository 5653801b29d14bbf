// The workers subcommand lists registered workers and their liveness.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

func runWorkers(args []string) {
	fs := flag.NewFlagSet("workers", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "coordinator base URL")
	_ = fs.Parse(args)

	var workers []struct {
		domain.Worker
		Available bool `json:"available"`
	}
	if err := getJSON(*server, "/gateway/workers", &workers); err != nil {
		fmt.Fprintf(os.Stderr, "workers: %v\n", err)
		os.Exit(1)
	}

	if len(workers) == 0 {
		fmt.Println("no workers registered")
		return
	}

	for _, w := range workers {
		fmt.Printf("id:             %s\n", w.ID)
		if w.DisplayName != "" {
			fmt.Printf("name:           %s\n", w.DisplayName)
		}
		fmt.Printf("kind:           %s\n", w.Kind)
		fmt.Printf("address:        %s:%d\n", w.Host, w.Port)
		fmt.Printf("status:         %s\n", w.Status)
		fmt.Printf("available:      %v\n", w.Available)
		fmt.Printf("load:           %d/%d\n", w.CurrentLoad, w.MaxLoad)
		fmt.Printf("last_heartbeat: %s\n", w.LastHeartbeat.UTC().Format(time.RFC3339))
		fmt.Println()
	}
}
