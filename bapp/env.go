package bapp

import (
	"os"
	"strings"
	"time"

	intervals "github.com/MawKKe/integer-interval-expressions-go"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	port() int
	serviceName() string
	readinessCheckPath() string
	logLevel() zapcore.Level
	otelExporter() string
	awsRegion() string
	primaryRegion() string
	gatewayAccessLogGroup() string
	lambdaTimeout() time.Duration
	errorStatusCodes() string
	metricsPath() string
	pipelineFile() string
	engine() string
}

// BaseEnvironment contains the variables every app needs. Embed this in your custom environment struct.
type BaseEnvironment struct {
	Port               int           `env:"AWS_LWA_PORT,required"`
	ServiceName        string        `env:"BP_SERVICE_NAME,required"`
	ReadinessCheckPath string        `env:"AWS_LWA_READINESS_CHECK_PATH,required"`
	LogLevel           zapcore.Level `env:"BP_LOG_LEVEL" envDefault:"info"`
	OtelExporter       string        `env:"BP_OTEL_EXPORTER" envDefault:"stdout"`
	AWSRegion          string        `env:"AWS_REGION,required"`
	PrimaryRegion      string        `env:"BP_PRIMARY_REGION,required"`
	LambdaTimeout      time.Duration `env:"BP_LAMBDA_TIMEOUT" envDefault:"30s"`
	// ErrorStatusCodes are the statuses Lambda Web Adapter reports as a failed invocation. It must
	// cover the 500 and 504 the pipeline answers with when something goes wrong.
	ErrorStatusCodes string `env:"AWS_LWA_ERROR_STATUS_CODES" envDefault:"500-599"`
	// GatewayAccessLogGroup is the CloudWatch Log Group name for API Gateway
	// access logs. When set, traces include this log group for X-Ray log
	// correlation.
	GatewayAccessLogGroup string `env:"BP_GATEWAY_ACCESS_LOG_GROUP"`
	// MetricsPath serves the prometheus metrics, empty disables the endpoint.
	MetricsPath string `env:"BP_METRICS_PATH" envDefault:"/metrics"`
	// PipelineFile is an optional yaml file that configures the pipeline, see [PipelineFile].
	PipelineFile string `env:"BP_PIPELINE_FILE"`
	// Engine selects the http server: "std" or "fasthttp".
	Engine string `env:"BP_ENGINE" envDefault:"std"`
}

func (e BaseEnvironment) port() int                     { return e.Port }
func (e BaseEnvironment) serviceName() string           { return e.ServiceName }
func (e BaseEnvironment) readinessCheckPath() string    { return e.ReadinessCheckPath }
func (e BaseEnvironment) logLevel() zapcore.Level       { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string          { return e.OtelExporter }
func (e BaseEnvironment) awsRegion() string             { return e.AWSRegion }
func (e BaseEnvironment) primaryRegion() string         { return e.PrimaryRegion }
func (e BaseEnvironment) gatewayAccessLogGroup() string { return e.GatewayAccessLogGroup }
func (e BaseEnvironment) lambdaTimeout() time.Duration  { return e.LambdaTimeout }
func (e BaseEnvironment) errorStatusCodes() string      { return e.ErrorStatusCodes }
func (e BaseEnvironment) metricsPath() string           { return e.MetricsPath }
func (e BaseEnvironment) pipelineFile() string          { return e.PipelineFile }
func (e BaseEnvironment) engine() string                { return e.Engine }

var _ Environment = BaseEnvironment{}

// DotenvFileVar names the variable that points to a .env file that is loaded before parsing.
const DotenvFileVar = "BP_DOTENV_FILE"

// ParseEnv parses environment variables into the given Environment type. Variables from the file in
// BP_DOTENV_FILE are loaded first, without overriding variables that are already set.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if file := os.Getenv(DotenvFileVar); file != "" {
			if err := godotenv.Load(file); err != nil {
				return e, errors.Wrapf(err, "failed to load dotenv file %q", file)
			}
		}

		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		if err := ValidateErrorStatusCodes(e.errorStatusCodes(), 500, 504); err != nil {
			return e, err
		}

		switch e.engine() {
		case "std", "fasthttp":
		default:
			return e, errors.Newf("unsupported BP_ENGINE: %q (supported: std, fasthttp)", e.engine())
		}

		return e, nil
	}
}

// ValidateErrorStatusCodes checks that the interval expression of status codes (e.g. "500,502-504" or
// "500-") includes every required code.
func ValidateErrorStatusCodes(codes string, required ...int) error {
	opts := intervals.DefaultParseOptions()
	opts.AllowEmptyExpression = true

	expr, err := intervals.ParseExpressionWithOptions(strings.ReplaceAll(codes, " ", ""), opts)
	if err != nil {
		return errors.Wrapf(err, "invalid AWS_LWA_ERROR_STATUS_CODES %q", codes)
	}

	missing := lo.Reject(required, func(code int, _ int) bool { return expr.Matches(code) })
	if len(missing) > 0 {
		return errors.Newf("AWS_LWA_ERROR_STATUS_CODES %q does not cover all required codes, missing: %v "+
			"(recommended value: %q)", codes, missing, "500-599")
	}

	return nil
}
