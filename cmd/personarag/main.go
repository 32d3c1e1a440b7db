package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "personarag",
	Short: "Chat with personas grounded in their own corpus",
	Long: `personarag answers as a chosen persona. Each turn retrieves the persona's
nearest corpus records and asks a chat-completion service to reply in character.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive persona chat",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask [utterance]",
	Short: "Ask a persona a single question and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List configured personas",
	Args:  cobra.NoArgs,
	RunE:  runPersonas,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/personarag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	chatCmd.Flags().String("persona", "", "open the chat with this persona instead of the picker")
	askCmd.Flags().String("persona", "", "persona id to answer as")
	askCmd.Flags().Bool("show-context", false, "print the retrieved grounding context before the reply")
	_ = askCmd.MarkFlagRequired("persona")

	rootCmd.AddCommand(chatCmd, askCmd, personasCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
