package common

// WorkerTokenHeaderName is the gRPC metadata key carrying the worker
// credential on outcome reports.
const WorkerTokenHeaderName = "worker_token"

// AuthorizationHeaderName carries the owner's bearer token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// IdempotencyKeyHeader is attached to every queued processing request.
const IdempotencyKeyHeader = "idempotency_key"
