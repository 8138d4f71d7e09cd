package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakdrill/internal/drill"
	"github.com/MrWong99/speakdrill/internal/scoring"
)

func newScoreCmd() *cobra.Command {
	var (
		elapsed time.Duration
		limit   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "score <expected> <observed>",
		Short: "Print the score breakdown for one answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := scoring.Score(args[0], args[1], elapsed, limit)
			out := cmd.OutOrStdout()
			if res.Empty {
				_, err := fmt.Fprintln(out, "empty answer: nothing to score")
				return err
			}
			fmt.Fprintf(out, "phonetic  %6.2f\n", res.Phonetic)
			fmt.Fprintf(out, "lexical   %6.2f\n", res.Lexical)
			fmt.Fprintf(out, "pacing    %6.2f\n", res.Pacing)
			fmt.Fprintf(out, "timing    %6.2f\n", res.Timing)
			fmt.Fprintf(out, "total     %6.2f (%d / 100)\n", res.Total, res.Rounded())
			fmt.Fprintf(out, "correct   %v\n", res.Correct)
			if !res.Correct {
				for _, h := range scoring.NewHinter().Hints(args[0], args[1]) {
					fmt.Fprintf(out, "hint      want %q, heard %q\n", h.Want, h.Got)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&elapsed, "elapsed", 2*time.Second, "time taken to answer")
	cmd.Flags().DurationVar(&limit, "limit", drill.DefaultTimeLimit, "allowed response time")
	return cmd
}
