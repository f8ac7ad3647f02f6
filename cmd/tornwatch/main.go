package main

import (
	"tornwatch/internal/cli"
)

func main() {
	cli.Execute()
}
