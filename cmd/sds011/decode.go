package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/airquality.report/internal/sds011"
)

func newDecodeCmd() *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "decode <hex-frame>...",
		Short: "Decode hex frames and print the resulting sensor state",
		Long: `Decode each frame in order against one sensor state and print the state after
every frame as a JSON line. With --fresh every frame starts from an empty state.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.OutOrStdout(), args, fresh)
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "decode every frame against an empty state")
	return cmd
}

type decodeLine struct {
	Frame   string              `json:"frame"`
	Command string              `json:"command,omitempty"`
	State   *sds011.SensorState `json:"state,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// runDecode writes one JSON line per frame. A failed frame leaves the state
// as it was and is counted; the count is returned as an error at the end.
func runDecode(w io.Writer, frames []string, fresh bool) error {
	enc := json.NewEncoder(w)
	var st sds011.SensorState
	failed := 0

	for _, in := range frames {
		if fresh {
			st = sds011.SensorState{}
		}
		line := decodeLine{Frame: in}

		buf, err := sds011.ParseHex(in)
		if err == nil {
			if len(buf) > 1 {
				line.Command = sds011.Command(buf[1]).String()
			}
			err = sds011.Handle(buf, &st)
		}
		if err != nil {
			failed++
			line.Error = err.Error()
		} else {
			snap := st.Clone()
			line.State = &snap
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d frames failed to decode", failed, len(frames))
	}
	return nil
}
