package main

import "github.com/keshon/snapver/internal/cli"

func main() {
	cli.Execute()
}
