// Package main is the entry point for the symopt application
package main

import (
	"github.com/symopt/symopt/cmd"
)

func main() {
	cmd.Execute()
}
