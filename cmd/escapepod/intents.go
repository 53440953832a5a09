// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cyb3rdog/escapepod-sdk-go/pkg/escapepod"
)

// NewIntentsCmd creates the intents subcommand group.
func NewIntentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "Manage intents stored by the extension proxy",
	}
	cmd.AddCommand(newIntentsListCmd())
	cmd.AddCommand(newIntentsCreateCmd())
	cmd.AddCommand(newIntentsDeleteCmd())
	return cmd
}

// withIntents connects and runs fn with the intent factory.
func withIntents(cmd *cobra.Command, fn func(ctx context.Context, f *escapepod.IntentFactory) error) error {
	conf, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	client, err := connect(cmd.Context(), cmd, conf)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	f, err := client.Intents()
	if err != nil {
		return err
	}
	return fn(cmd.Context(), f)
}

func newIntentsListCmd() *cobra.Command {
	var filter, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored intents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch output {
			case "table", "json", "yaml":
			default:
				return oops.Code("INVALID_OUTPUT").With("output", output).
					Errorf("unknown output format %q (table, json or yaml)", output)
			}
			return withIntents(cmd, func(ctx context.Context, f *escapepod.IntentFactory) error {
				list, err := f.SelectIntents(ctx, filter).Result()
				if err != nil {
					return err
				}
				return writeIntents(cmd.OutOrStdout(), output, list)
			})
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "{}", "JSON filter document matched against stored intents")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json or yaml)")
	return cmd
}

func writeIntents(w io.Writer, format string, list []escapepod.Intent) error {
	switch format {
	case "json":
		docs := make([]json.RawMessage, 0, len(list))
		for _, in := range list {
			docs = append(docs, json.RawMessage(in.Raw()))
		}
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return oops.Wrapf(err, "marshal intents")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return oops.Wrapf(err, "marshal intents")
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tINTENT\tUTTERANCES")
	for _, in := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", in.ID, in.Name, in.Intent, in.UtteranceList)
	}
	return tw.Flush()
}

func newIntentsCreateCmd() *cobra.Command {
	var def escapepod.IntentDefinition

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an intent routed to extensions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIntents(cmd, func(ctx context.Context, f *escapepod.IntentFactory) error {
				id, err := f.CreateIntent(ctx, def).Result()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&def.Name, "name", "", "intent name")
	cmd.Flags().StringVar(&def.Keywords, "keywords", "", "comma-separated utterances")
	cmd.Flags().StringVar(&def.Description, "description", "", "intent description")
	cmd.Flags().StringVar(&def.Intent, "intent", "", "event intent name (defaults to intent_<name>)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("keywords")
	return cmd
}

func newIntentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <intent>",
		Short: "Delete every stored intent with the given intent name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIntents(cmd, func(ctx context.Context, f *escapepod.IntentFactory) error {
				n, err := f.DeleteIntent(ctx, args[0]).Result()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d intent(s)\n", n)
				return err
			})
		},
	}
}
