// Package main is the entry point of the GuardLane service.
// It initializes the Kratos application with gRPC and HTTP servers.
package main

import (
	"flag"
	"os"

	"GuardLane/internal/biz"
	"GuardLane/internal/conf"
	zapLogger "GuardLane/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name string
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, rc *conf.Resilience, resilience *biz.ResilienceService, gs *grpc.Server, hs *http.Server) *kratos.App {
	registerConfiguredServices(rc, resilience)
	StartHealthSweepCron(rc, resilience, logger)

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
		),
	)
}

// registerConfiguredServices registers every service named in the config with
// its resolved resilience policy. Services absent from the config are
// registered lazily with defaults on first use.
func registerConfiguredServices(rc *conf.Resilience, resilience *biz.ResilienceService) {
	if rc == nil {
		return
	}
	for name, policy := range rc.Services {
		if policy == nil {
			policy = rc.Defaults
		}
		resilience.RegisterService(name, policyOptions(policy))
	}
}

// policyOptions converts a config policy into service options. Per-service
// policies arrive from the bootstrap already resolved against the defaults.
func policyOptions(policy *conf.Resilience_Policy) biz.ServiceOptions {
	if policy == nil {
		return biz.ServiceOptions{}
	}

	cb := &biz.CircuitBreakerConfig{
		FailureThreshold: int(policy.FailureThreshold),
		RecoveryTimeout:  policy.RecoveryTimeout.AsDuration(),
		MonitoringPeriod: policy.MonitoringPeriod.AsDuration(),
		HalfOpenMaxCalls: int(policy.HalfOpenMaxCalls),
	}
	retry := &biz.RetryConfig{
		MaxRetries:        int(policy.MaxRetries),
		BaseDelay:         policy.BaseDelay.AsDuration(),
		MaxDelay:          policy.MaxDelay.AsDuration(),
		BackoffMultiplier: policy.BackoffMultiplier,
		Jitter:            policy.Jitter,
	}

	return biz.ServiceOptions{
		CircuitBreaker: cb,
		Retry:          retry,
		Timeout:        policy.Timeout.AsDuration(),
		EnableFallback: policy.EnableFallback,
	}
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	log.NewHelper(logger).Infow(
		"msg", "GuardLane service starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.env", bc.Log.Env,
		"log.output_file", bc.Log.OutputFile,
		"type", "startup",
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Resilience, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
