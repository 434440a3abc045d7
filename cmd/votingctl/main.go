package main

import "github.com/OKaluzny/voting-dapp/cmd/votingctl/cmd"

func main() {
	cmd.Execute()
}
