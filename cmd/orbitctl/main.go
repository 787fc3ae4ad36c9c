// Command orbitctl is the CLI client for a running orbitd, grounded on the
// teacher's cmd/wt/main.go command-tree style (one cobra.Command per verb,
// a shared client built once in PersistentPreRunE).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/control"
)

var client *control.Client

func main() {
	root := &cobra.Command{
		Use:   "orbitctl",
		Short: "Control a running orbitd daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			mgr := config.NewManager()
			workspace, _ := os.Getwd()
			if err := mgr.Load(filepath.Join(home, ".orbitx"), workspace); err != nil {
				return err
			}
			cfg := mgr.Get()
			if cfg.Dir == "" {
				cfg.Dir = filepath.Join(home, ".orbitx")
			}
			client = control.NewClient(cfg.SocketPath())
			return nil
		},
	}

	root.AddCommand(doctorCmd(), panesCmd(), checkpointCmd(), reindexCmd(), searchCmd(), runCmd(), permissionsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check whether orbitd is reachable and report its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.Status(context.Background())
			if err != nil {
				return fmt.Errorf("orbitd unreachable: %w", err)
			}
			printJSON(status)
			return nil
		},
	}
}

func panesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "panes", Short: "Manage terminal panes"}

	var rows, cols int
	var cwd string
	create := &cobra.Command{
		Use:   "create",
		Short: "Spawn a new pane",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := client.CreatePane(context.Background(), uint16(rows), uint16(cols), cwd)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	create.Flags().IntVar(&rows, "rows", 24, "pane rows")
	create.Flags().IntVar(&cols, "cols", 80, "pane cols")
	create.Flags().StringVar(&cwd, "cwd", "", "working directory (defaults to orbitd's workspace)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active panes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := client.ListPanes(context.Background())
			if err != nil {
				return err
			}
			printJSON(ids)
			return nil
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "checkpoint", Short: "Manage checkpoints"}

	var sessionID, userMessage, workspace string
	var files []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Capture a checkpoint of the given files",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := client.CreateCheckpoint(context.Background(), control.CreateCheckpointRequest{
				SessionID: sessionID, UserMessage: userMessage, Workspace: workspace, Files: files,
			})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	create.Flags().StringVar(&sessionID, "session", "", "session id")
	create.Flags().StringVar(&userMessage, "message", "", "associated user message")
	create.Flags().StringVar(&workspace, "workspace", ".", "workspace root")
	create.Flags().StringSliceVar(&files, "file", nil, "file to snapshot (repeatable)")

	rollback := &cobra.Command{
		Use:   "rollback <checkpoint-id>",
		Short: "Restore workspace files to a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := client.Rollback(context.Background(), args[0])
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	cmd.AddCommand(create, rollback)
	return cmd
}

func reindexCmd() *cobra.Command {
	var workspace string
	var files []string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed workspace files into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				var err error
				workspace, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			out, err := client.Reindex(context.Background(), workspace, files)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root (defaults to the current directory)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "specific file(s) to reindex, relative to --workspace (defaults to the whole tree)")
	return cmd
}

func searchCmd() *cobra.Command {
	var query string
	var topK int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the workspace vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := client.Search(context.Background(), query, topK, 0)
			if err != nil {
				return err
			}
			printJSON(hits)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "search text")
	cmd.Flags().IntVar(&topK, "top", 10, "max results")
	return cmd
}

func permissionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "permissions", Short: "Answer a pending tool permission request"}

	grantOrDeny := func(decision string) *cobra.Command {
		sub := &cobra.Command{
			Use:   decision + " <tool>",
			Short: "Record a " + decision + " decision for <tool>",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.SetPermission(context.Background(), args[0], map[string]any{}, decision)
			},
		}
		return sub
	}

	cmd.AddCommand(grantOrDeny("allow_once"), grantOrDeny("always_allow"), grantOrDeny("deny"), grantOrDeny("always_deny"))
	return cmd
}

func runCmd() *cobra.Command {
	var sessionID, conversationID string
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Submit a prompt as a new ReAct execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := client.SubmitExecution(context.Background(), sessionID, conversationID, args[0])
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id (blank creates one)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "existing conversation id (blank creates one)")
	return cmd
}
