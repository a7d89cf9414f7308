package main

import "github.com/spherex-xyz/flowguard/internal/cli"

func main() {
	cli.Execute()
}
