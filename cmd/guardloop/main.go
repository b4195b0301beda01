// guardloop is the escalation decision engine for autonomous agents.
package main

import "github.com/guardloop/guardloop/internal/cli"

func main() {
	cli.Execute()
}
