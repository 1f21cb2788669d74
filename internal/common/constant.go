package common

const (
	// ContentSha256HeaderName carries the hex SHA-256 of a chunk body.
	ContentSha256HeaderName = "X-Content-Sha256"

	// DefaultAPIPrefix is the path under which the upload API is mounted.
	DefaultAPIPrefix = "/api/content-sources/v1"

	// HealthServiceName is the gRPC health service name of the upload API.
	HealthServiceName = "contentup.uploads"
)
