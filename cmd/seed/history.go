package main

import (
	"context"
	"fmt"
	"log/slog"
	"meet-relay/repositories"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <roomId>",
	Short: "Print the most recent chat messages of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid room id: %w", err)
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		repository := repositories.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn))
		messages, cursor, err := repository.GetMessages(context.Background(), roomID, nil, historyLimit)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			color.Warn.Println("No message in this room")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Time", "Sender", "Content", "Edited"})
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		for _, m := range messages {
			edited := ""
			if m.Edited {
				edited = "yes"
			}
			table.Append([]string{m.CreatedAt.Local().Format(time.DateTime), m.SenderID.String()[:8], m.Content, edited})
		}
		table.Render()
		if cursor != nil {
			color.Info.Printf("More messages before %s\n", *cursor)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of messages to print")
}
