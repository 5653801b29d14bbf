// The addons subcommand lists announced addons and their endpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

func runAddons(args []string) {
	fs := flag.NewFlagSet("addons", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "coordinator base URL")
	worker := fs.String("worker", "", "limit to one worker id")
	_ = fs.Parse(args)

	path := "/gateway/addons"
	if *worker != "" {
		path = "/gateway/workers/" + *worker + "/addons"
	}

	var addons []domain.Addon
	if err := getJSON(*server, path, &addons); err != nil {
		fmt.Fprintf(os.Stderr, "addons: %v\n", err)
		os.Exit(1)
	}

	if len(addons) == 0 {
		fmt.Println("no addons registered")
		return
	}

	for _, a := range addons {
		fmt.Printf("worker:   %s\n", a.WorkerID)
		fmt.Printf("addon:    %s@%s\n", a.Name, a.Version)
		fmt.Printf("enabled:  %v\n", a.Enabled)
		for _, ep := range a.Endpoints {
			fmt.Printf("  %-7s %s", strings.Join(ep.Methods, ","), ep.Path)
			if ep.Summary != "" {
				fmt.Printf("  (%s)", ep.Summary)
			}
			fmt.Println()
		}
		fmt.Println()
	}
}
