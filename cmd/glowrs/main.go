package main

import (
	"context"
	"fmt"
	"os"

	"glowrs/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "glowrs:", err)
		os.Exit(1)
	}
}
