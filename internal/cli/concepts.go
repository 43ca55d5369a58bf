package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/companion/pkg/concepts"
)

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "Inspect the concept catalog",
}

var conceptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List concepts in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runConceptsList,
}

var conceptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one concept including its expert explanation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConceptsShow,
}

func init() {
	conceptsCmd.AddCommand(conceptsListCmd)
	conceptsCmd.AddCommand(conceptsShowCmd)
	rootCmd.AddCommand(conceptsCmd)
}

func runConceptsList(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	cmd.Printf("%d concepts in %s:\n", catalog.Len(), catalog.Path())
	for _, c := range catalog.List() {
		cmd.Printf("- %s: %s\n", c.ID, c.Name)
	}
	return nil
}

func runConceptsShow(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	id := strings.TrimSpace(args[0])
	c, ok := catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("unknown concept: %s", id)
	}

	cmd.Printf("ID: %s\n", c.ID)
	cmd.Printf("Concept: %s\n", c.Name)
	cmd.Printf("Explanation: %s\n", c.Explanation)
	return nil
}

func loadCatalog() (*concepts.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return concepts.Load(cfg.Concepts.Path)
}
