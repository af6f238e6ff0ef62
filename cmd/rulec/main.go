package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/rulelang/rulec/core/rulefmt"
	"github.com/rulelang/rulec/internal/policy"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rulec",
		Short: "Compile policy rule syntax into on-chain instruction sets",
	}
	rootCmd.AddCommand(buildCommand(), depsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildCommand() *cobra.Command {
	var (
		output string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "build <policy.json>",
		Short: "Compile a policy document into a rule artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := buildOnce(path, output); err != nil {
				if !watch {
					return err
				}
				fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
			}
			if watch {
				return watchAndRebuild(path, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "policy.rlbc", "Artifact output path")
	cmd.Flags().BoolVar(&watch, "watch", false, "Recompile whenever the policy document changes")
	return cmd
}

func buildOnce(path, output string) error {
	doc, err := policy.Load(path)
	if err != nil {
		return err
	}

	artifact, err := doc.Compile()
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating artifact file: %w", err)
	}
	defer func() { _ = f.Close() }()

	digest, err := rulefmt.Write(f, artifact)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "compiled %d rule(s) -> %s (blake2b %s)\n",
		len(artifact.Rules), output, hex.EncodeToString(digest[:8]))
	return nil
}

// watchAndRebuild recompiles the policy document on every write until
// interrupted. Editors often replace files instead of writing in place, so
// the parent directory is watched and events are filtered by name.
func watchAndRebuild(path, output string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	fmt.Fprintf(os.Stderr, "watching %s\n", path)
	for {
		select {
		case <-interrupt:
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := buildOnce(path, output); err != nil {
				fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
			}
		}
	}
}

func depsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <policy.json>",
		Short: "List the foreign calls and trackers each rule depends on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc.Dependencies(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
