package main

import "github.com/arcfield/jobforge/internal/cmd"

func main() {
	cmd.Execute()
}
