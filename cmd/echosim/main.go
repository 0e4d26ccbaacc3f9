// The echosim command runs the resource ledger that backs the cognitive
// architecture simulation, together with its monitoring server and event
// recording.
package main

func main() {
	Execute()
}
