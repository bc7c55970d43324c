package main

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rimescape/sampler/pkg/engine"
)

func newPlayCmd() *cobra.Command {
	var dir, scriptPath string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Drive the engine through a script and play the result live",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(dir, scriptPath)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "instrument folder to load (required)")
	cmd.Flags().StringVar(&scriptPath, "script", "", "event script path (required)")
	cmd.MarkFlagRequired("dir")
	cmd.MarkFlagRequired("script")

	return cmd
}

func runPlay(dir, scriptPath string) error {
	f, err := os.Open(scriptPath)
	if err != nil {
		return errors.Wrap(err, "opening script")
	}
	events, err := parseScript(f)
	f.Close()
	if err != nil {
		return err
	}

	e, err := newLoadedEngine(context.Background(), dir)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cliSampleRate,
		ChannelCount: cliChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4096,
	})
	if err != nil {
		return errors.Wrap(err, "opening audio device")
	}
	<-ready

	src := &engineSource{engine: e}
	player := ctx.NewPlayer(src)
	player.Play()
	defer player.Close()

	for _, ev := range events {
		if ev.kind == "wait" {
			time.Sleep(time.Duration(ev.waitMs) * time.Millisecond)
			continue
		}
		applyEvent(e, ev)
	}

	// Let any still-releasing voices finish rather than cutting the
	// output off the instant the script ends.
	time.Sleep(2 * time.Second)
	return nil
}

// engineSource adapts the engine's block renderer to io.Reader, the
// shape oto.Context.NewPlayer expects; it fills whatever byte count the
// player asks for by rendering float32 blocks and packing them as
// little-endian bytes, matching oto.FormatFloat32LE without resorting to
// unsafe pointer casts.
type engineSource struct {
	engine *engine.SamplerEngine
	block  []float32
}

func (s *engineSource) Read(p []byte) (int, error) {
	const bytesPerSample = 4
	frames := len(p) / (bytesPerSample * cliChannels)
	if frames == 0 {
		return 0, nil
	}

	need := frames * cliChannels
	if len(s.block) < need {
		s.block = make([]float32, need)
	}
	block := s.block[:need]
	s.engine.ProcessBlock(block)

	for i, sample := range block {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(sample))
	}
	return need * bytesPerSample, nil
}
