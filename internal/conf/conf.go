package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Resilience *Resilience
	Log        *Log
}

// Server holds transport listener configuration.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

// Server_HTTP configures the HTTP listener.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Server_GRPC configures the gRPC listener.
type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage configuration. Both stores are optional.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the MySQL audit store.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis snapshot/fallback store.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Resilience holds the default policy applied to services registered without
// explicit settings, plus per-service overrides keyed by service name.
type Resilience struct {
	HealthSweepInterval *durationpb.Duration
	Defaults            *Resilience_Policy
	Services            map[string]*Resilience_Policy
}

// Resilience_Policy is one service's circuit breaker, retry and timeout
// configuration.
type Resilience_Policy struct {
	FailureThreshold  int32
	RecoveryTimeout   *durationpb.Duration
	MonitoringPeriod  *durationpb.Duration
	HalfOpenMaxCalls  int32
	MaxRetries        int32
	BaseDelay         *durationpb.Duration
	MaxDelay          *durationpb.Duration
	BackoffMultiplier float64
	Jitter            bool
	Timeout           *durationpb.Duration
	EnableFallback    bool
}

// Log configures the zap logging stack.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
