package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/entropass/pkg/backup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect archived capture samples",
	}
	cmd.PersistentFlags().String("db", "entropass.db", "SQLite backup database")

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE:  runBackupsList,
	}
	list.Flags().IntP("limit", "n", 20, "Maximum number of backups")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one backup as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupsShow,
	}

	cmd.AddCommand(list, show)
	RootCmd.AddCommand(cmd)
}

func openBackups(cmd *cobra.Command) (*backup.SQLiteStore, error) {
	path, _ := cmd.Flags().GetString("db")
	return backup.NewSQLiteStore(path)
}

func runBackupsList(cmd *cobra.Command, _ []string) error {
	s, err := openBackups(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	list, err := s.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range list {
		fmt.Fprintf(out, "%s  %s  length=%d frames=%d\n",
			b.ID, b.GeneratedAt.Local().Format("2006-01-02 15:04:05"), b.PasswordLength, b.FramesUsed)
	}
	return nil
}

func runBackupsShow(cmd *cobra.Command, args []string) error {
	s, err := openBackups(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
