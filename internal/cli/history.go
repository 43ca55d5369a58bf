package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/companion/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage stored conversation history",
}

var historyTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List concepts that have conversation history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryTopics,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <concept-id>",
	Short: "Print the conversation so far for a concept",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <concept-id>",
	Short: "Forget the conversation for a concept",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.AddCommand(historyTopicsCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryTopics(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}

	topics, err := store.Topics()
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		cmd.Println("No conversation history.")
		return nil
	}
	for _, t := range topics {
		cmd.Printf("- %s\n", t)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}

	turns, err := store.Load(context.Background(), strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		cmd.Println("No conversation history.")
		return nil
	}
	cmd.Println(history.Render(turns))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}

	topic := strings.TrimSpace(args[0])
	if err := store.Clear(topic); err != nil {
		return err
	}
	cmd.Printf("Cleared history for %s.\n", topic)
	return nil
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.History.Dir)
}
