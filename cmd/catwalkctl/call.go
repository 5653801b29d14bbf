// The call subcommand sends one
// proxied request through the coordinator and prints the result.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func runCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "coordinator base URL")
	method := fs.String("method", "GET", "HTTP method")
	body := fs.String("body", "", "request body")
	_ = fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: catwalkctl call [--server url] [--method M] [--body B] <worker_id> <path>")
		os.Exit(1)
	}
	workerID := fs.Arg(0)
	path := strings.TrimPrefix(fs.Arg(1), "/")

	url := strings.TrimSuffix(*server, "/") + "/servers/" + workerID + "/" + path

	var reqBody io.Reader
	if *body != "" {
		reqBody = strings.NewReader(*body)
	}
	req, err := http.NewRequest(strings.ToUpper(*method), url, reqBody)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: %v\n", err)
		os.Exit(1)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("status:       %s\n", resp.Status)
	fmt.Printf("content-type: %s\n", resp.Header.Get("Content-Type"))
	fmt.Println()
	fmt.Println(string(respBody))
}
