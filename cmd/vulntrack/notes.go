package vulntrack

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/types"
)

func init() {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Keep local notes on findings",
		Long:  "Notes live in ~/.vulntrack/notes.json and are never sent to the backend. Use 'status --set-notes' to change backend notes.",
	}

	getCmd := &cobra.Command{
		Use:   "get NAME HOST",
		Short: "Print the note for a finding",
		Args:  cobra.ExactArgs(2),
		RunE:  runNotesGet,
	}
	setCmd := &cobra.Command{
		Use:   "set NAME HOST TEXT...",
		Short: "Attach a note to a finding (empty text removes it)",
		Args:  cobra.MinimumNArgs(3),
		RunE:  runNotesSet,
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all notes, newest first",
		Args:  cobra.NoArgs,
		RunE:  runNotesList,
	}
	rmCmd := &cobra.Command{
		Use:     "rm NAME HOST",
		Aliases: []string{"delete"},
		Short:   "Remove the note for a finding",
		Args:    cobra.ExactArgs(2),
		RunE:    runNotesRm,
	}

	notesCmd.AddCommand(getCmd, setCmd, listCmd, rmCmd)
	rootCmd.AddCommand(notesCmd)
}

// noteID resolves the ID the dashboard uses for the same finding.
func noteID(name, host string) (string, error) {
	s, err := loadSettings()
	if err != nil {
		return "", err
	}
	return types.Finding{Source: s.Source, Name: name, Host: host}.ID(), nil
}

func runNotesGet(cmd *cobra.Command, args []string) error {
	id, err := noteID(args[0], args[1])
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	n, ok := store.LoadNotes()[id]
	if !ok {
		return fmt.Errorf("no note for %s on %s", args[0], args[1])
	}
	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), n)
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.Text)
	return nil
}

func runNotesSet(cmd *cobra.Command, args []string) error {
	id, err := noteID(args[0], args[1])
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(args[2:], " "))
	if err := store.SetNote(id, args[0], args[1], text); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	if text == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Note removed")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Note saved")
	}
	return nil
}

func runNotesList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	notes := store.LoadNotes().Sorted()
	w := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(w, notes)
	}
	if len(notes) == 0 {
		fmt.Fprintln(w, "No notes")
		return nil
	}
	for _, n := range notes {
		fmt.Fprintf(w, "%s  %s on %s\n    %s\n", n.Updated.Local().Format("2006-01-02 15:04"), n.Name, n.Host, n.Text)
	}
	return nil
}

func runNotesRm(cmd *cobra.Command, args []string) error {
	id, err := noteID(args[0], args[1])
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.DeleteNote(id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Note removed")
	return nil
}
