package main

import "os"

// Calls the internal gRPC availability surface of a running
// scheduling-service, for verifying the protogen build end to end.
func main() {
	os.Exit(run())
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
