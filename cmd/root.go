package cmd

import (
	"fmt"
	"os"

	"github.com/shelfdb/shelf/cmd/col"
	"github.com/shelfdb/shelf/cmd/lock"
	"github.com/shelfdb/shelf/cmd/serve"
	"github.com/shelfdb/shelf/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.2"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "shelf",
		Short: "embeddable collection store",
		Long: fmt.Sprintf(`shelf (v%s)

A collection-oriented record store written in Go. Records are schemaless
maps addressed by normalized identifiers; collections can be embedded
in-process or served over RPC.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of shelf",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shelf v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(col.CollectionCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary, msgpack)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
