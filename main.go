package main

import "github.com/fastgate/fastgate/cmd"

func main() {
	cmd.Execute()
}
