package flags

import (
	"crypto/ecdsa"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/common"
	"github.com/ruteri/certificate-manager/cryptoutils"
	"github.com/ruteri/certificate-manager/httpserver"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		SignatureMaxAge:          cCtx.Duration(SignatureMaxAgeFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// LoadPrivateKey reads the caller key from --privkey or from an encrypted
// --keyfile unlocked with --passphrase.
func LoadPrivateKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	if hexKey := cCtx.String(PrivKeyFlag.Name); hexKey != "" {
		return cryptoutils.ParsePrivateKeyHex(hexKey)
	}
	if path := cCtx.String(KeyFileFlag.Name); path != "" {
		return cryptoutils.LoadKeyFile(path, cCtx.String(PassphraseFlag.Name))
	}
	return nil, errors.New("either --privkey or --keyfile is required")
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}
var SignatureMaxAgeFlag = &cli.DurationFlag{
	Name:  "signature-max-age",
	Value: httpserver.DefaultSignatureMaxAge,
	Usage: "maximum age of a signed request timestamp",
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "certificate manager server to talk to",
	EnvVars: []string{"MANAGER_SERVER_ADDR"},
}
var PrivKeyFlag = &cli.StringFlag{
	Name:    "privkey",
	Usage:   "hex-encoded secp256k1 private key used to sign requests",
	EnvVars: []string{"MANAGER_PRIVKEY"},
}
var KeyFileFlag = &cli.StringFlag{
	Name:  "keyfile",
	Usage: "encrypted key file, alternative to --privkey",
}
var PassphraseFlag = &cli.StringFlag{
	Name:    "passphrase",
	Usage:   "passphrase for --keyfile",
	EnvVars: []string{"MANAGER_PASSPHRASE"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
