// cmd/hazpost/main.go
package main

import (
	"hazpost/internal/app"
	"hazpost/internal/appshell"
)

func main() {
	appshell.Main(app.RunContext)
}
