package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand は textforge のルートコマンドを作成します。
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "textforge [command] [flags]",
		Short: "textforge submits text transformation jobs and follows them to completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
	}
	cmd.AddCommand(NewCmdEstimate())
	cmd.AddCommand(NewCmdSubmit())
	cmd.AddCommand(NewCmdStatus())
	cmd.AddCommand(NewCmdList())
	cmd.AddCommand(NewCmdResults())
	cmd.AddCommand(NewCmdWatch())
	return cmd
}
