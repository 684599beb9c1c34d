// Command ontology manages property descriptors, domains and object values.
package main

import "github.com/mesh-intelligence/ontology/internal/cli"

func main() {
	cli.Execute()
}
