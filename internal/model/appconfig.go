package model

// AppConfig holds application-wide preferences and default settings.
type AppConfig struct {
	// Server settings
	ListenAddr     string `json:"listen_addr"`      // Address the HTTP API binds to
	MaxUploadBytes int64  `json:"max_upload_bytes"` // Largest accepted kit workbook
	StateFile      string `json:"state_file"`       // Experiment snapshot path, empty = in-memory only

	// Client settings
	ServerURL      string `json:"server_url"`      // Base URL the CLI sends apply requests to
	RequestTimeout int    `json:"request_timeout"` // seconds, 0 = no timeout

	// Placement defaults
	DefaultPlate PlateType `json:"default_plate"`
}

// DefaultAppConfig returns an AppConfig populated with sensible defaults.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		ListenAddr:     "127.0.0.1:5000",
		MaxUploadBytes: 25 * 1024 * 1024,
		StateFile:      "",
		ServerURL:      "http://127.0.0.1:5000",
		RequestTimeout: 30,
		DefaultPlate:   Plate96,
	}
}

// Normalize fills zero values left by an older or hand-edited config file.
func (c *AppConfig) Normalize() {
	defaults := DefaultAppConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if c.ServerURL == "" {
		c.ServerURL = defaults.ServerURL
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if _, err := LookupPlate(c.DefaultPlate); err != nil {
		c.DefaultPlate = defaults.DefaultPlate
	}
}
