package handler

const (
	// RootPath is the root path the route group.
	RootPath = "/"

	// APIPath prefixes every JSON endpoint.
	APIPath = RootPath + "api/"

	// CheckAlivePath answers load balancer probes.
	CheckAlivePath = RootPath + "checkalive"

	// DefaultPageSize is used when a listing does not ask for a page size.
	DefaultPageSize = 50

	// ErrNilACDFatalLogMsg is used if app or cfg or db var pointer is nil.
	ErrNilACDFatalLogMsg = "app, cfg or db is nil"
)
