// Package main provides the cerberus CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/cerberus/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	platform string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "cerberus",
		Short: "Defended LLM recommendation pipeline for study materials",
		Long: `A recommendation system where an LLM queries a materials database through
tools, guarded by a prompt-injection filter on the student's input and a
PII-redaction filter on the model's output.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&platform, "platform", "p", "", "Model platform (openai, anthropic, deepseek, gemini); overrides config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	// Add commands
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(materialsCmd())
	rootCmd.AddCommand(errorsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func recommendCmd() *cobra.Command {
	var question string
	var noInputFilter bool
	var noPIIFilter bool
	var useMCP bool

	cmd := &cobra.Command{
		Use:   "recommend [student-id]",
		Short: "Generate study recommendations for a student",
		Long: `Generate study recommendations by letting the model query the materials
database through tools.

The student's optional question passes through the prompt-injection filter
before reaching the model, and the model's output passes through the
PII-redaction filter before being printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Platform:      platform,
				Question:      question,
				NoInputFilter: noInputFilter,
				NoPIIFilter:   noPIIFilter,
				UseMCP:        useMCP,
				Verbose:       verbose,
			}
			return cli.Recommend(context.Background(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Optional question/context from the student")
	cmd.Flags().BoolVar(&noInputFilter, "no-input-filter", false, "Disable the prompt-injection filter")
	cmd.Flags().BoolVar(&noPIIFilter, "no-pii-filter", false, "Disable the PII-redaction filter")
	cmd.Flags().BoolVar(&useMCP, "mcp", false, "Use an external MCP SQLite server instead of the in-process session")

	return cmd
}

func toolsCmd() *cobra.Command {
	var useMCP bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the database session exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Platform: platform,
				UseMCP:   useMCP,
				Verbose:  verbose,
			}
			return cli.ListTools(context.Background(), opts)
		},
	}

	cmd.Flags().BoolVar(&useMCP, "mcp", false, "Use an external MCP SQLite server instead of the in-process session")

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate the materials database with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Seed(context.Background(), cli.Options{Platform: platform, Verbose: verbose})
		},
	}
}

func materialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materials",
		Short: "Show curated study files and their usable pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowMaterials(context.Background(), cli.Options{Platform: platform, Verbose: verbose})
		},
	}
}

func errorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors [student-id]",
		Short: "Show the questions a student answered incorrectly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowErrors(context.Background(), args[0], cli.Options{Platform: platform, Verbose: verbose})
		},
	}
}
