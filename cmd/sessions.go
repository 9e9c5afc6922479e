// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/pkg/scanlog"
	"github.com/Thermoquad/scanstat/pkg/scanstore"
)

var sessionsStore string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded sessions",
	Long: `List, inspect, export and delete the sessions kept in the session store.

Sessions are created with 'record --store'.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *scanstore.Store) error {
			sessions, err := store.ListSessions()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions")
				return nil
			}
			fmt.Printf("%-36s  %-19s  %8s  %7s  %s\n", "ID", "Started", "Duration", "Scans", "Source")
			for _, s := range sessions {
				fmt.Printf("%-36s  %-19s  %8s  %7d  %s\n",
					s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), sessionDuration(s), s.Scans, s.Source)
			}
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and its range summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *scanstore.Store) error {
			sess, err := store.GetSession(args[0])
			if err != nil {
				return err
			}
			frames, err := store.Scans(sess.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Session:     %s\n", sess.ID)
			if sess.Notes != "" {
				fmt.Printf("Notes:       %s\n", sess.Notes)
			}
			if sess.EndedAt == nil {
				fmt.Printf("State:       open\n")
			}
			printRecording(sess.Header(), frames)
			return nil
		})
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id> <recording>",
	Short: "Export a session as a CBOR recording",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *scanstore.Store) error {
			sess, err := store.GetSession(args[0])
			if err != nil {
				return err
			}
			frames, err := store.Scans(sess.ID)
			if err != nil {
				return err
			}
			n, err := exportRecording(args[1], sess.Header(), frames)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d scans to %s\n", n, args[1])
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its scans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *scanstore.Store) error {
			if err := store.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.PersistentFlags().StringVar(&sessionsStore, "store", "scanstat.db", "Session store database (SQLite)")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsExportCmd, sessionsDeleteCmd)
}

// withStore opens the session store for the duration of f
func withStore(f func(*scanstore.Store) error) error {
	if _, err := os.Stat(sessionsStore); err != nil {
		return fmt.Errorf("session store %s: %w", sessionsStore, err)
	}
	store, err := scanstore.Open(sessionsStore)
	if err != nil {
		return err
	}
	defer store.Close()
	return f(store)
}

// sessionDuration formats how long a session ran, "open" if it has not ended
func sessionDuration(s scanstore.Session) string {
	if s.EndedAt == nil {
		return "open"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}

// exportRecording writes frames as a recording file
func exportRecording(path string, h scanlog.Header, frames []scanlog.Frame) (uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	buf := bufio.NewWriter(f)
	w, err := scanlog.NewWriter(buf, h)
	if err != nil {
		f.Close()
		return 0, err
	}
	for _, frame := range frames {
		if err := w.Append(frame); err != nil {
			f.Close()
			return w.Frames(), err
		}
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		return w.Frames(), err
	}
	return w.Frames(), f.Close()
}
