// Command postingcached runs the posting cache service.
package main

import (
	"fmt"
	"os"

	"github.com/snowpity/postingcache/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
