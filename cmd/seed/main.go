package main

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	badgerPath string
	jwtSecret  string
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Prepare and inspect the relay database",
	Long: `seed writes rooms, users and participants into the relay BadgerDB
and prints the tokens needed to connect to the websocket endpoints.
The relay must be stopped while seeding: Badger holds a directory lock.`,
	SilenceUsage: true,
}

func init() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&badgerPath, "db", os.Getenv("BADGER_FILEPATH"), "path to the badger directory")
	rootCmd.PersistentFlags().StringVar(&jwtSecret, "secret", os.Getenv("JWT_SECRET"), "secret used to sign tokens")
	rootCmd.AddCommand(roomCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Error.Println(err)
		os.Exit(1)
	}
}

func openDB() (*badger.DB, error) {
	if badgerPath == "" {
		return nil, fmt.Errorf("no database path, set --db or BADGER_FILEPATH")
	}
	return badger.Open(badger.DefaultOptions(badgerPath).WithLoggingLevel(badger.WARNING))
}
