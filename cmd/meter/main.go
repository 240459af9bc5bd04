// Package main is the entry point for the meter service and its admin CLI.
package main

func main() {
	Execute()
}
