package main

import "nanto/internal/nanto"

func main() {
	nanto.Main()
}
