package main

import (
	"os"

	"github.com/frostlock/frostlock/pkg/frostengine"
	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     os.Args[0],
		Short:   "Frostlock: return your machine to a known-clean state, selectively persisting what matters",
		Version: dynversion.Version,
		// hide the default "completion" subcommand from polluting UX (it can still be used). https://github.com/spf13/cobra/issues/1507
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	frostengine.RegisterRootFlags(rootCmd)

	for _, entrypoint := range frostengine.Entrypoints() {
		rootCmd.AddCommand(entrypoint)
	}

	osutil.ExitIfError(rootCmd.Execute())
}
