package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Brownie44l1/photo-rater/internal/cli"
)

func main() {
	if err := cli.NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
