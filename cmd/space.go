package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/searchspace"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Inspect search space definitions",
	Long: `Inspect search space files before starting a tuning run.
Spaces are JSON or YAML objects mapping dimension names to distributions.`,
}

var validateSpaceCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check that a search space file is well formed",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateSpace,
}

var showSpaceCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Display the dimensions of a search space",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSpace,
}

func init() {
	rootCmd.AddCommand(spaceCmd)
	spaceCmd.AddCommand(validateSpaceCmd)
	spaceCmd.AddCommand(showSpaceCmd)
}

func runValidateSpace(cmd *cobra.Command, args []string) error {
	space, err := searchspace.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("search space is invalid: %w", err)
	}

	fmt.Printf("Search space OK: %d dimension(s)\n", space.Len())
	if size, ok := space.FiniteSize(); ok {
		fmt.Printf("Finite space with %d distinct assignment(s)\n", size)
	}
	return nil
}

func runShowSpace(cmd *cobra.Command, args []string) error {
	space, err := searchspace.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("search space is invalid: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tDETAILS")
	fmt.Fprintln(w, "----\t----\t-------")

	for _, name := range space.Names() {
		dim, _ := space.Get(name)
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, dim.Kind, describeDimension(dim))
	}
	w.Flush()

	if size, ok := space.FiniteSize(); ok {
		fmt.Printf("\nFinite space with %d distinct assignment(s)\n", size)
	} else {
		fmt.Println("\nSpace has continuous dimensions")
	}
	return nil
}

func describeDimension(dim searchspace.Dimension) string {
	switch dim.Kind {
	case searchspace.KindChoice:
		return fmt.Sprintf("%d choice(s): %v", len(dim.Choices), dim.Choices)
	case searchspace.KindRandInt:
		return fmt.Sprintf("integers in [%d, %d)", int64(dim.Low), int64(dim.High))
	case searchspace.KindUniform, searchspace.KindLogUniform:
		return fmt.Sprintf("[%g, %g]", dim.Low, dim.High)
	case searchspace.KindQUniform:
		return fmt.Sprintf("[%g, %g] in steps of %g", dim.Low, dim.High, dim.Q)
	case searchspace.KindNormal:
		return fmt.Sprintf("mu %g, sigma %g", dim.Mu, dim.Sigma)
	}
	return ""
}
