// Cosit runs portable RTOS applications on a simulated kernel.
package main

import "github.com/sarchlab/cosit/cosit/cmd"

func main() {
	cmd.Execute()
}
