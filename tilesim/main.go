// Command tilesim simulates directory-based cache coherence on a tiled
// multicore and checks that every load observes the last store.
package main

import "github.com/sarchlab/tilesim/tilesim/cmd"

func main() {
	cmd.Execute()
}
