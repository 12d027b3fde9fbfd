package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// DatabaseConfig describes one database served by an RPC server. A database
// pairs a storage engine with a declared schema; requests are routed to it
// by its numeric ID, which client and server agree on by configuration.
type DatabaseConfig struct {
	// ID routes requests to this database. Must be unique per server.
	ID uint64
	// Name identifies the database in logs and diagnostics.
	Name string
	// Engine selects the storage engine: "hazel" (in-memory, the default)
	// or "badgerkv" (persistent).
	Engine string
	// Dir is the data directory for persistent engines. Empty means
	// in-memory operation.
	Dir string
	// Collections declares the schema. Every listed collection is created
	// on open with auto-increment identifiers.
	Collections []string
	// Default names the collection addressed when a request carries no
	// collection name.
	Default string
	// Version is the declared schema version.
	Version uint64
}

// TransportConfig holds socket tuning knobs shared by the stream transports.
type TransportConfig struct {
	// TCPNoDelay disables Nagle's algorithm when true.
	TCPNoDelay bool
	// TCPKeepAliveSec enables TCP keep-alive with the given period. Zero
	// leaves keep-alive at the OS default.
	TCPKeepAliveSec int
	// TCPLingerSec sets the linger timeout. Negative means OS default.
	TCPLingerSec int
	// ReadBufferSize / WriteBufferSize set the socket buffer sizes.
	// Zero leaves them at the OS default.
	ReadBufferSize  int
	WriteBufferSize int
	// BufferSize is the server-side frame buffer size. Zero selects the
	// transport's default.
	BufferSize int
	// WorkersPerConn limits concurrent request workers per connection.
	WorkersPerConn int
}

// ServerConfig holds all configuration parameters for an RPC server.
type ServerConfig struct {
	// Endpoint the transport listens on (address:port, socket path or
	// HTTP listen address, depending on the transport).
	Endpoint string

	// Databases served by this instance.
	Databases []DatabaseConfig

	// TimeoutSecond bounds per-request read and write deadlines.
	TimeoutSecond int64

	// Transport holds socket tuning knobs.
	Transport TransportConfig

	// LogLevel configures all named loggers (debug, info, warn, error).
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Databases")
	for _, db := range c.Databases {
		eng := db.Engine
		if eng == "" {
			eng = "hazel"
		}
		desc := fmt.Sprintf("%s (%s", db.Name, eng)
		if db.Dir != "" {
			desc += ", dir " + db.Dir
		}
		desc += fmt.Sprintf(", %d collections)", len(db.Collections))
		addField(strconv.FormatUint(db.ID, 10), desc)
	}

	return sb.String()
}

// Validate checks the server configuration for consistency.
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	if len(c.Databases) == 0 {
		return fmt.Errorf("no databases configured")
	}
	seen := make(map[uint64]string, len(c.Databases))
	for _, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("database %d has no name", db.ID)
		}
		if prev, ok := seen[db.ID]; ok {
			return fmt.Errorf("duplicate database ID %d (%s and %s)", db.ID, prev, db.Name)
		}
		seen[db.ID] = db.Name
		switch db.Engine {
		case "", "hazel", "badgerkv":
		default:
			return fmt.Errorf("database %s: unknown engine %q", db.Name, db.Engine)
		}
		if len(db.Collections) == 0 && db.Default == "" {
			return fmt.Errorf("database %s declares no collections", db.Name)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters for RPC clients.
type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int

	// Transport holds socket tuning knobs applied to outgoing connections.
	Transport TransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	connsPerEP := c.ConnectionsPerEndpoint
	if connsPerEP < 1 {
		connsPerEP = 1
	}
	addField("Connections Per Endpoint", strconv.Itoa(connsPerEP))

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
