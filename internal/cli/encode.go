package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

func newEncodeTopicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode-topic NAME",
		Short: "Print the base64 topic id for a topic name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), topic.EncodeID(args[0]))
			return nil
		},
	}
}
