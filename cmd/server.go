package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gustavolhonda/Backend-Liven/config"
	server2 "github.com/gustavolhonda/Backend-Liven/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
