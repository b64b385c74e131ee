// Package main is the entry point for the monodash aggregation service.
package main

import (
	"github.com/notaproblemdotdev/monodash/cli"
)

func main() {
	cli.Execute()
}
