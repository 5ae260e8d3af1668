package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr     string
	BasePath string
	// History bounds the number of state changes kept for stream replay.
	History int
}
