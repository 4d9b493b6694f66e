package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry statistics",
	Long:  "Display location, hierarchy, and marker counts for the registry.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("job"); err != nil {
			return err
		}

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "stats")
		}

		fmt.Printf("Locations:          %d\n", st.Locations)
		fmt.Printf("  Cities:           %d\n", st.Cities)
		fmt.Printf("  Landmarks:        %d\n", st.Landmarks)
		fmt.Printf("  Orphan landmarks: %d\n", st.OrphanLandmarks)
		fmt.Printf("Markers:            %d\n", st.Markers)
		fmt.Printf("  Unassigned:       %d\n", st.UnassignedMarkers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
