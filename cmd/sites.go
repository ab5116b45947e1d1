package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newSitesCmd creates the 'sites' subcommand. Descriptors are validated when
// the config loads, so reaching RunE means every site is usable.
func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "Lists the configured sites after validating them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEARCH URL\tLINKS")
			for _, site := range e.cfg.Descriptors() {
				links := "relative"
				if site.LinksAreAbsolute {
					links = "absolute"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", site.Name, site.SearchURLTemplate, links)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d site(s) valid\n", len(e.cfg.Sites))
			return nil
		},
	}
}
