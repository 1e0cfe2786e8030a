/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/blacktop/syndicate/internal/config"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/spf13/cobra"
)

func newLimitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show each destination's media limits",
		Long:  "limits prints the static per-destination media constraints. No network calls are made.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			coordinator := syndicate.NewCoordinator(buildPublishers(cfg, nil))

			caps := coordinator.Capabilities()
			names := make([]string, 0, len(caps))
			for name := range caps {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DESTINATION\tMAX MEDIA\tMAX IMAGES\tMAX VIDEOS\tMIXED KINDS\tMEDIA REQUIRED")
			for _, name := range names {
				c := caps[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%t\t%t\n", name, c.MaxMedia, c.MaxImages, c.MaxVideos, c.MixedKinds, c.RequiresMedia)
			}
			return w.Flush()
		},
	}
}
