package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBDriver string
	DBDSN    string

	// Application configuration
	RulesDir        string
	Port            string
	BaseUrl         string
	WorkerCount     int
	RefreshInterval time.Duration
	SectionTimeout  time.Duration
	PageSize        int
	APIAccessKey    string

	// Snapshot cache
	RedisAddr   string
	SnapshotTTL time.Duration

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// PublicURL is the base for links in generated RSS.
func (c *Cfg) PublicURL() string {
	if c.BaseUrl != "" {
		return c.BaseUrl
	}
	return "http://localhost:" + c.Port
}
