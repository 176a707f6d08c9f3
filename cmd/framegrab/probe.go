package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

var probeCommand = &cli.Command{
	Name:      "probe",
	Usage:     "Print the container and streams of a media file",
	ArgsUsage: "<input>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("expected an input file", 1)
		}
		runner, err := newRunner()
		if err != nil {
			return exit(err)
		}

		container, err := runner.Probe(c.Context, c.Args().First())
		if err != nil {
			return exit(err)
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "format\t%s\n", container.Format)
		fmt.Fprintf(w, "duration\t%s\n", container.Duration)
		fmt.Fprintf(w, "bit rate\t%d\n", container.BitRate)
		for _, s := range container.Streams {
			fmt.Fprintf(w, "stream %d\t%s %s", s.Index, s.MediaType, s.Codec)
			if s.Width > 0 {
				fmt.Fprintf(w, " %dx%d %s %.3g fps", s.Width, s.Height, s.PixelFormat, s.FrameRate)
			}
			if s.AttachedPicture {
				fmt.Fprint(w, " (attached picture)")
			}
			fmt.Fprintln(w)
		}
		if first, err := container.FirstVideoStream(); err == nil {
			fmt.Fprintf(w, "first video\tstream %d\n", first.Index)
		} else {
			fmt.Fprintf(w, "first video\tnone\n")
		}
		return w.Flush()
	},
}
