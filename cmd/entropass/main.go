// Command entropass derives passwords from webcam frames.
//
// Usage:
//
//	entropass generate [--length N] [--no-preview] [--out-json backup.json]
//	entropass serve [--port 5000]
//	entropass backups list --db entropass.db
package main

import (
	"os"

	"github.com/teslashibe/entropass/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
