package main

import "github.com/vietddude/logwatcher/internal/cli"

func main() {
	cli.Execute()
}
