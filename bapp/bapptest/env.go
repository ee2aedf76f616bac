package bapptest

import (
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting [bapp.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [bapp.BaseEnvironment] env vars to test defaults.
// Port is required because each test must use a unique port to avoid collisions.
//
// Defaults:
//   - BP_SERVICE_NAME: "test"
//   - AWS_LWA_READINESS_CHECK_PATH: "/health"
//   - AWS_REGION: "us-east-1"
//   - BP_PRIMARY_REGION: "eu-west-1"
//   - BP_LAMBDA_TIMEOUT: "30s"
//   - BP_OTEL_EXPORTER: "none"
//   - AWS_LWA_ERROR_STATUS_CODES: "500-599"
//   - AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY: "test"
//
// Use the returned [Env] to override individual values:
//
//	bapptest.SetBaseEnv(t, 18085).AWSRegion("eu-west-1").PrimaryRegion("eu-central-1")
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("AWS_LWA_PORT", strconv.Itoa(port))
	t.Setenv("BP_SERVICE_NAME", "test")
	t.Setenv("AWS_LWA_READINESS_CHECK_PATH", "/health")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("BP_PRIMARY_REGION", "eu-west-1")
	t.Setenv("BP_LAMBDA_TIMEOUT", "30s")
	t.Setenv("BP_OTEL_EXPORTER", "none")
	t.Setenv("AWS_LWA_ERROR_STATUS_CODES", "500-599")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	return &Env{t: t}
}

// ServiceName overrides BP_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_SERVICE_NAME", name)
	return e
}

// ReadinessCheckPath overrides AWS_LWA_READINESS_CHECK_PATH.
func (e *Env) ReadinessCheckPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("AWS_LWA_READINESS_CHECK_PATH", path)
	return e
}

// AWSRegion overrides AWS_REGION.
func (e *Env) AWSRegion(region string) *Env {
	e.t.Helper()
	e.t.Setenv("AWS_REGION", region)
	return e
}

// PrimaryRegion overrides BP_PRIMARY_REGION.
func (e *Env) PrimaryRegion(region string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_PRIMARY_REGION", region)
	return e
}

// LambdaTimeout overrides BP_LAMBDA_TIMEOUT.
func (e *Env) LambdaTimeout(d string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_LAMBDA_TIMEOUT", d)
	return e
}

// PipelineFile sets BP_PIPELINE_FILE.
func (e *Env) PipelineFile(path string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_PIPELINE_FILE", path)
	return e
}

// Engine overrides BP_ENGINE.
func (e *Env) Engine(engine string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_ENGINE", engine)
	return e
}
