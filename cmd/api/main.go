// Command api serves the wallet HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/upi-wallet/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "upi-wallet: %v\n", err)
		os.Exit(1)
	}
}
