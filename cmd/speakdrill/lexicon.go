package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakdrill/internal/lexicon"
)

func newLexiconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Inspect and import drill lexicons",
	}
	cmd.AddCommand(newLexiconCheckCmd())
	cmd.AddCommand(newLexiconImportCmd())
	return cmd
}

func newLexiconCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML or TOML lexicon and print its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lex, err := lexicon.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d entries\n", lex.Name(), lex.Len())
			for i, e := range lex.Entries() {
				fmt.Fprintf(out, "%3d. %s\n     -> %s\n", i+1, e.Prompt, e.Answer)
			}
			return nil
		},
	}
}

func newLexiconImportCmd() *cobra.Command {
	var (
		sqlitePath  string
		postgresDSN string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a lexicon file in SQLite or PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (sqlitePath == "") == (postgresDSN == "") {
				return errors.New("exactly one of --sqlite or --postgres is required")
			}
			lex, err := lexicon.LoadFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var store lexicon.Store
			if sqlitePath != "" {
				s, err := lexicon.OpenSQLite(sqlitePath)
				if err != nil {
					return err
				}
				store = s
			} else {
				s, err := lexicon.NewPostgresStore(ctx, postgresDSN)
				if err != nil {
					return err
				}
				store = s
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "close store: %v\n", cerr)
				}
			}()

			if err := store.Save(ctx, lex); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %q (%d entries)\n", lex.Name(), lex.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database file")
	cmd.Flags().StringVar(&postgresDSN, "postgres", "", "PostgreSQL connection string")
	return cmd
}
