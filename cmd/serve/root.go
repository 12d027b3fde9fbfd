package serve

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	cmdUtil "github.com/shelfdb/shelf/cmd/util"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/shelfdb/shelf/rpc/serializer"
	"github.com/shelfdb/shelf/rpc/server"
	"github.com/shelfdb/shelf/rpc/transport"
	"github.com/shelfdb/shelf/rpc/transport/http"
	"github.com/shelfdb/shelf/rpc/transport/tcp"
	"github.com/shelfdb/shelf/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the shelf server",
		Long:    `Start the shelf server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SHELF_<flag> (e.g. SHELF_ENDPOINT=0.0.0.0:9090)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "databases"
	ServeCmd.PersistentFlags().String(key, "1=app:hazel", cmdUtil.WrapString("Comma-separated list of databases to serve. Format: ID=NAME[:ENGINE] where ENGINE is one of: hazel (in-memory, default), badgerkv (persistent)"))

	key = "collections"
	ServeCmd.PersistentFlags().String(key, "default", cmdUtil.WrapString("Comma-separated list of collections declared in every served database"))

	key = "default-collection"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The collection addressed by requests that carry no collection name. Defaults to the first declared collection"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Base directory for persistent engines. Each database stores its data under <data-dir>/<name>"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Per-request timeout in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/shelf.sock, ...)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse the collections shared by all databases
	var collections []string
	for _, col := range strings.Split(viper.GetString("collections"), ",") {
		if col = strings.TrimSpace(col); col != "" {
			collections = append(collections, col)
		}
	}
	if len(collections) == 0 {
		return fmt.Errorf("at least one collection must be declared")
	}

	defaultCollection := viper.GetString("default-collection")
	dataDir := viper.GetString("data-dir")

	// parse databases
	databasesConfig := viper.GetString("databases")
	serveCmdConfig.Databases = []common.DatabaseConfig{}
	for _, databaseConfig := range strings.Split(databasesConfig, ",") {
		parts := strings.Split(databaseConfig, "=")
		if len(parts) != 2 {
			return fmt.Errorf("invalid database format: %s (expected ID=NAME[:ENGINE])", databaseConfig)
		}

		// Parse database ID
		dbID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid database ID %s: %v", parts[0], err)
		}

		// Parse name and engine
		nameParts := strings.SplitN(strings.TrimSpace(parts[1]), ":", 2)
		name := nameParts[0]
		if name == "" {
			return fmt.Errorf("invalid database format: %s (name must not be empty)", databaseConfig)
		}

		engineName := "hazel"
		if len(nameParts) == 2 {
			engineName = nameParts[1]
		}

		dbConf := common.DatabaseConfig{
			ID:          dbID,
			Name:        name,
			Engine:      engineName,
			Collections: collections,
			Default:     defaultCollection,
		}

		switch engineName {
		case "hazel":
			// in-memory, no data directory
		case "badgerkv":
			dbConf.Dir = filepath.Join(dataDir, name)
		default:
			return fmt.Errorf("invalid engine: %s (expected one of: hazel, badgerkv)", engineName)
		}

		serveCmdConfig.Databases = append(serveCmdConfig.Databases, dbConf)
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return serveCmdConfig.Validate()
}

// run starts the shelf server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	case "msgpack":
		s = serializer.NewMsgpackSerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("shelf")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
