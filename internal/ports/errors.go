package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Remote Storage Errors
	ErrAuthenticationFailed = errors.New("remote storage authentication failed (check GDRIVE_CREDENTIALS or GDRIVE_TOKEN)")
	ErrPermissionDenied     = errors.New("permission denied on remote folder (check GDRIVE_FOLDER_ID sharing)")
	ErrRemoteUnavailable    = errors.New("remote storage is unavailable")

	// Market Data Errors
	ErrProviderUnavailable = errors.New("market data provider is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the market data provider")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrUnknownSymbol       = errors.New("symbol not recognised by provider")

	// Series File Errors
	ErrMalformedSeries = errors.New("series file is malformed")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
