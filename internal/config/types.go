package config

// API backends
const (
	BackendHTTP = "http"
	BackendMock = "mock"
)

// Throttle policies, mirrored by ws.ThrottlePolicy
const (
	PolicyDrop     = "drop"
	PolicyCoalesce = "coalesce"
)

// ValidLogLevels lists the zap levels accepted in logging.level
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}
