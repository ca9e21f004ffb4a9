package main

import "github.com/fakeyudi/shlog/cmd"

func main() {
	cmd.Execute()
}
