// Command zolltools converts SAS7BDAT tables to validated Parquet files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Jython1415/zolltools/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
