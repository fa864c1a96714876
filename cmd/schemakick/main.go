package main

import "github.com/aqasim81/schemakick/internal/cli"

func main() {
	cli.Execute()
}
