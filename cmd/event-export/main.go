package main

import "github.com/Log-Tools/commerce-events-export/internal/cli"

func main() {
	cli.Execute()
}
