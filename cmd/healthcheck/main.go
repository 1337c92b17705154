// Command healthcheck exits 0 when a fixturemock endpoint reports healthy.
// It is meant for container health probes.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	url := "http://localhost:8888/__admin/health"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		os.Exit(1)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
