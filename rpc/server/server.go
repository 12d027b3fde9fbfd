package server

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shelfdb/shelf/lib/logger"
	"github.com/shelfdb/shelf/rpc/common"
	"github.com/shelfdb/shelf/rpc/serializer"
	"github.com/shelfdb/shelf/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) RPCServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return RPCServer{
		config:       config,
		transport:    transport,
		serializer:   serializer,
		databases:    xsync.NewMapOf[uint64, *Database](),
		collectionAd: NewCollectionServerAdapter(),
		lockAd:       NewLockManagerServerAdapter(),
	}
}

// RPCServer serves a set of databases over one transport. Requests are
// routed to a database by the numeric ID in the frame header, then to the
// collection or lock adapter by message type.
type RPCServer struct {
	config       common.ServerConfig
	transport    transport.IRPCServerTransport
	serializer   serializer.IRPCSerializer
	databases    *xsync.MapOf[uint64, *Database]
	collectionAd IRPCServerAdapter
	lockAd       IRPCServerAdapter
}

// Database returns the served database with the given routing ID.
func (s *RPCServer) Database(id uint64) (*Database, bool) {
	return s.databases.Load(id)
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(dbID uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get the target database
		db, ok := s.databases.Load(dbID)

		// Case database does not exist -> error
		if !ok {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("database %d not found", dbID),
			}
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to deserialize request: %s", err),
			}
		} else if msg.MsgType.IsLockOp() {
			respMsg = *s.lockAd.Handle(&msg, db)
		} else {
			respMsg = *s.collectionAd.Handle(&msg, db)
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %s", err)
			val, _ = s.serializer.Serialize(common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			})
		}
		return val
	})
}

// Init builds the served databases and registers the transport handler
// without listening. Serve calls it implicitly; tests use it to drive the
// handler in-process.
func (s *RPCServer) Init() error {
	// Init loggers
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config); err != nil {
			return err
		}
	}

	if err := s.config.Validate(); err != nil {
		return err
	}

	// CREATE DATABASES

	/*
		Note: A single RPC server can serve any number of databases. Each
		database pairs a storage engine with its declared collections and a
		lock manager. The following loop creates them all and stores them
		for request routing.
	*/

	for _, dbConfig := range s.config.Databases {
		db, err := NewDatabase(dbConfig)
		if err != nil {
			return err
		}
		if err := db.Manager.Open(); err != nil {
			return fmt.Errorf("failed to open database %s: %w", dbConfig.Name, err)
		}
		s.databases.Store(dbConfig.ID, db)
		Logger.Infof("created database %s (id %d)", dbConfig.Name, dbConfig.ID)
	}

	Logger.Infof("shelf server setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also initialize the databases and start the transport layer
func (s *RPCServer) Serve() error {
	if err := s.Init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close shuts down every served database.
func (s *RPCServer) Close() error {
	var firstErr error
	s.databases.Range(func(id uint64, db *Database) bool {
		if err := db.Manager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
