package main

import "github.com/byefat/backend/internal/cli"

func main() {
	cli.Execute()
}
