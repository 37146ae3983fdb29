package main

import "github.com/lxdream/dreamxir/cmd"

func main() {
	cmd.Execute()
}
