package main

import "github.com/mistnet/httpx/cmd/httpxd"

func main() {
	httpxd.Execute()
}
