package main

import (
	"os"

	"github.com/getcharzp/go-segtrack/config"
	"github.com/getcharzp/go-segtrack/console"
	"github.com/getcharzp/go-segtrack/cvview"
	"github.com/getcharzp/go-segtrack/slicer"
	"github.com/getcharzp/go-segtrack/workflow"
	"github.com/spf13/cobra"
)

var sliceCmd = &cobra.Command{
	Use:   "slice [video]",
	Short: "Dump every frame of a video in the videos directory as numbered JPEGs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := &workflow.SliceApp{
			Prompter:  console.New(os.Stdin, os.Stdout),
			VideosDir: cfg.VideosDir,
			FramesDir: cfg.FramesDir,
			Open:      videoOpener(cfg.Decoder),
			Logger:    logger,
		}
		if cfg.Headless {
			app.Preview = slicer.NoPreview{}
		} else {
			player := cvview.NewPlayer("Video Frame")
			defer player.Close()
			app.Preview = player
		}

		if len(args) == 1 {
			return app.Slice(cmd.Context(), args[0])
		}
		return app.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(sliceCmd)
}

func videoOpener(decoder string) slicer.Opener {
	if decoder == config.DecoderFFmpeg {
		return slicer.OpenFFmpeg
	}
	return cvview.OpenVideo
}
