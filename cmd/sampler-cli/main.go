// Command sampler-cli is a host stand-in for the sampler engine: it
// loads an instrument folder, drives the engine through a plain-text
// event script, and either plays the result live or renders it to a
// WAV file. Nothing here is part of the engine's public contract; it
// exists to exercise every package from outside pkg/ the way a real
// DAW plug-in shell would.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sampler-cli: %+v\n", errors.WithStack(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sampler-cli",
		Short: "Drive the sampler engine from a MIDI-like event script",
	}

	root.AddCommand(newPlayCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newStateCmd())

	return root
}
