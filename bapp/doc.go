// Package bapp runs bpipe services on AWS Lambda Web Adapter (LWA).
//
// # Overview
//
// bapp takes care of the setup around the pipeline: environment parsing, structured logging,
// OpenTelemetry tracing, prometheus metrics, AWS SDK clients and graceful shutdown. A complete
// application is created in a single call:
//
//	bapp.NewApp[Env](func(m *bapp.Mux, h *Handlers) {
//	    m.HandleFunc("GET /items", h.ListItems)
//	    m.HandleFunc("GET /items/{id}", h.GetItem, bpipe.Name("get-item"))
//	},
//	    bapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client { return dynamodb.NewFromConfig(cfg) }),
//	    bapp.WithFx(fx.Provide(NewHandlers)),
//	).Run()
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    bapp.BaseEnvironment
//	    MainTableName string `env:"MAIN_TABLE_NAME,required"`
//	}
//
// BaseEnvironment reads the following variables:
//
//	| Variable                      | Required | Default  | Description                                     |
//	|-------------------------------|----------|----------|-------------------------------------------------|
//	| AWS_LWA_PORT                  | Yes      | -        | Port the HTTP server listens on                 |
//	| AWS_LWA_READINESS_CHECK_PATH  | Yes      | -        | Readiness endpoint, served outside the pipeline |
//	| AWS_REGION                    | Yes      | -        | AWS region (set by the Lambda runtime)          |
//	| BP_SERVICE_NAME               | Yes      | -        | Service name for logs, traces and metrics       |
//	| BP_PRIMARY_REGION             | Yes      | -        | Primary deployment region                       |
//	| BP_LAMBDA_TIMEOUT             | No       | 30s      | Lambda function timeout                         |
//	| BP_LOG_LEVEL                  | No       | info     | Log level (debug, info, warn, error)            |
//	| BP_OTEL_EXPORTER              | No       | stdout   | Trace exporter: "stdout", "xrayudp" or "none"   |
//	| BP_GATEWAY_ACCESS_LOG_GROUP   | No       | -        | API Gateway access log group for X-Ray          |
//	| BP_METRICS_PATH               | No       | /metrics | Path of the prometheus endpoint                 |
//	| BP_PIPELINE_FILE              | No       | -        | Yaml file with the pipeline settings            |
//	| BP_ENGINE                     | No       | std      | HTTP server: "std" or "fasthttp"                |
//	| BP_DOTENV_FILE                | No       | -        | .env file loaded before parsing                 |
//	| AWS_LWA_ERROR_STATUS_CODES    | No       | 500-599  | Must cover 500 and 504                          |
//
// # Pipeline
//
// The pipeline file selects the error renderer and CORS guard for all routes, see [PipelineFile].
// Errors are logged through zap and counted per status code. Every route runs behind [WithRequestLogger],
// [WithLWAContext] and [WithRequestDeadline], so handlers can use [Log], [LWA] and [Span] on their
// context.
//
// # Runtime
//
// [Runtime] provides access to app-scoped dependencies and is injected into handler constructors:
//
//	func (h *Handlers) GetItem(ctx context.Context, c *bpipe.Context) error {
//	    env := h.rt.Env()
//	    self, _ := h.rt.Reverse("get-item", c.Route().Param("id"))
//	    key, err := h.rt.Secret(ctx, "my-api-keys", "stripe.key")
//	    // ...
//	}
//
// Large objects in S3 can be served in ranges with [S3Object], outbound calls are traced through
// [Runtime.NewRequest].
package bapp
