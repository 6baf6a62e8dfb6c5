// Command datchat answers natural-language questions from SQL databases.
package main

import (
	"os"

	"github.com/koustreak/datchat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
