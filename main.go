package main

import "github.com/frahmantamala/payment-orchestration/cmd"

func main() {
	cmd.Execute()
}
