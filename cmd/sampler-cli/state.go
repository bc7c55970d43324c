package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rimescape/sampler/pkg/engine"
	"github.com/rimescape/sampler/pkg/state"
)

func newStateCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "state",
		Short: "Save or load the engine's persisted knob state",
	}

	var dir, path string

	save := &cobra.Command{
		Use:   "save",
		Short: "Load a folder, then write the resulting default state to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newLoadedEngine(context.Background(), dir)
			if err != nil {
				return err
			}
			defer e.Shutdown()

			f, err := os.Create(path)
			if err != nil {
				return errors.Wrap(err, "creating state file")
			}
			defer f.Close()

			return errors.Wrap(state.Save(f, e.SaveState()), "saving state")
		},
	}
	save.Flags().StringVar(&dir, "dir", "", "instrument folder to load (required)")
	save.Flags().StringVar(&path, "out", "state.bin", "state file to write")
	save.MarkFlagRequired("dir")

	load := &cobra.Command{
		Use:   "load",
		Short: "Load a persisted state file and report the folder it restores",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, "opening state file")
			}
			defer f.Close()

			s, err := state.Load(f)
			if err != nil {
				return errors.Wrap(err, "loading state")
			}

			e := engine.New(cliSampleRate, cliChannels)
			defer e.Shutdown()
			e.RestoreState(context.Background(), s, func(p string) bool {
				_, err := os.Stat(p)
				return err == nil
			})

			cmd.Printf("restored folder=%q attack=%.3f decay=%.3f sustain=%.3f release=%.3f\n",
				s.SampleFolder, s.Attack, s.Decay, s.Sustain, s.Release)
			return nil
		},
	}
	load.Flags().StringVar(&path, "in", "state.bin", "state file to read")

	root.AddCommand(save, load)
	return root
}
