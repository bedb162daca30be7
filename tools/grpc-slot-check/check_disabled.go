//go:build !protogen

package main

import "fmt"

func run() int {
	fmt.Println("built without gRPC bindings; run `make proto` and rebuild with -tags protogen")
	return 1
}
