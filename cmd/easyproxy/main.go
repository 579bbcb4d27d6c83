// Command easyproxy is the multi-protocol forward proxy binary.
package main

import "github.com/Slothtron/easyproxy/cmd"

func main() {
	cmd.Execute()
}
