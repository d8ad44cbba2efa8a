// cmd/hazpost-ingest/main.go
package main

import (
	"hazpost/internal/appshell"
	"hazpost/internal/ingestapp"
)

func main() {
	appshell.Main(ingestapp.RunContext)
}
