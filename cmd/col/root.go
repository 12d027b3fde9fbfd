package col

import (
	"github.com/shelfdb/shelf/cmd/util"
	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcCollection collection.ICollection

	// CollectionCommands represents the collection command group
	CollectionCommands = &cobra.Command{
		Use:               "col",
		Short:             "Perform collection operations",
		PersistentPreRunE: setupCollectionClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the collection command
	util.SetupRPCClientFlags(CollectionCommands)

	// Set default database ID for collection operations (different from Lock default)
	CollectionCommands.PersistentFlags().Int("db", 1, util.WrapString("ID of the database to connect to"))
	CollectionCommands.PersistentFlags().String("collection", "", util.WrapString("Name of the collection to operate on (empty for the server's default collection)"))

	// Add subcommands
	CollectionCommands.AddCommand(addCmd)
	CollectionCommands.AddCommand(saveCmd)
	CollectionCommands.AddCommand(getCmd)
	CollectionCommands.AddCommand(getAllCmd)
	CollectionCommands.AddCommand(updateCmd)
	CollectionCommands.AddCommand(delCmd)
	CollectionCommands.AddCommand(clearCmd)
	CollectionCommands.AddCommand(countCmd)
	CollectionCommands.AddCommand(searchCmd)
	CollectionCommands.AddCommand(filterCmd)
	CollectionCommands.AddCommand(statsCmd)
	CollectionCommands.AddCommand(perfTestCmd)
}

// setupCollectionClient initializes the RPC collection client
func setupCollectionClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	dbID := util.GetDatabaseID()
	collectionName := util.GetCollectionName()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the collection client
	rpcCollection, err = client.NewRPCCollection(
		dbID,
		collectionName,
		*config,
		t,
		s,
	)

	return err
}
