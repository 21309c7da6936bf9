package main

import (
	"context"
	"fmt"
	"os"

	"template-service/internal/cli"
)

// Version information (set via ldflags during build)
var Version = "dev"

func main() {
	if err := cli.Execute(context.Background(), Version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
