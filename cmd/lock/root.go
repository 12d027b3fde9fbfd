package lock

import (
	"fmt"
	"time"

	"github.com/shelfdb/shelf/cmd/util"
	"github.com/shelfdb/shelf/lib/lockmgr"
	"github.com/shelfdb/shelf/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcLockMgr lockmgr.ILockManager
	acquireTTL uint64

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		PersistentPreRunE: setupLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [resource]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [resource] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the resource name and owner ID. The owner ID is the string returned by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	// Set default database ID for lock operations (different from collection default)
	LockCommands.PersistentFlags().Int("db", 1, util.WrapString("ID of the database to connect to"))

	// Add flags specific to acquire
	acquireCmd.Flags().Uint64Var(&acquireTTL, "ttl", 30, "Lock time-to-live in seconds (0 for no expiration)")
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	dbID := util.GetDatabaseID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the lock manager client
	rpcLockMgr, err = client.NewRPCLockMgr(
		dbID,
		*config,
		t,
		s,
	)

	return err
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	resource := args[0]

	// Attempt to acquire the lock
	acquired, ownerID, err := rpcLockMgr.AcquireLock(resource, time.Duration(acquireTTL)*time.Second)

	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}

	if !acquired {
		fmt.Printf("acquired=false\n")
		return nil
	}

	fmt.Printf("acquired=true, ownerId=%s\n", ownerID)

	return nil
}

// runRelease handles the release lock command
func runRelease(_ *cobra.Command, args []string) error {
	resource := args[0]
	ownerID := args[1]

	// Attempt to release the lock
	released, err := rpcLockMgr.ReleaseLock(resource, ownerID)

	if err != nil {
		return fmt.Errorf("failed to release lock: %v", err)
	}

	fmt.Printf("released=%v\n", released)

	return nil
}
