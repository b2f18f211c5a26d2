package main

import "cryptofmv/cmd"

func main() {
	cmd.Execute()
}
