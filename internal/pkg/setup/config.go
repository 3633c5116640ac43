package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/manifest"
	"github.com/airenas/tflow/internal/pkg/validator"
	"github.com/spf13/viper"
)

// SetDefaults sets default config values
func SetDefaults(c *viper.Viper) {
	c.SetDefault("server.url", "http://localhost:8000")
	c.SetDefault("server.uploadPath", "/api/upload")
	c.SetDefault("server.logsPath", "/ws/logs")
	c.SetDefault("server.clearPath", "/api/files")
	c.SetDefault("upload.timeout", "30m")
	c.SetDefault("channel.dialTimeout", "3s")
	c.SetDefault("channel.keepAlive", "20s")
	c.SetDefault("channel.closeGrace", "3s")
	c.SetDefault("channel.armDelay", "300ms")
	c.SetDefault("logs.capacity", 300)
	c.SetDefault("validator.maxSizeMB", 25)
	c.SetDefault("validator.maxFiles", 10)
	c.SetDefault("defaults.language", api.LanguageAuto)
	c.SetDefault("defaults.summaryMode", string(api.SummaryBullet))
	c.SetDefault("defaults.diarization", false)
	c.SetDefault("defaults.speakers", 0)
	c.SetDefault("watch.settle", "2s")
}

// Policy reads file acceptance policy
func Policy(c *viper.Viper) (validator.Policy, error) {
	res := validator.DefaultPolicy()
	mb := c.GetInt64("validator.maxSizeMB")
	if mb <= 0 {
		return res, fmt.Errorf("wrong validator.maxSizeMB %d", mb)
	}
	res.MaxSize = mb * 1024 * 1024
	res.MaxFiles = c.GetInt("validator.maxFiles")
	if res.MaxFiles <= 0 {
		return res, fmt.Errorf("wrong validator.maxFiles %d", res.MaxFiles)
	}
	return res, nil
}

// Defaults reads default processing options
func Defaults(c *viper.Viper) (manifest.Options, error) {
	res := manifest.Options{}
	res.Language = strings.TrimSpace(c.GetString("defaults.language"))
	var err error
	if res.SummaryMode, err = api.ParseSummaryMode(c.GetString("defaults.summaryMode")); err != nil {
		return res, err
	}
	res.Diarization = c.GetBool("defaults.diarization")
	res.Speakers = c.GetInt("defaults.speakers")
	if res.Speakers < 0 {
		return res, fmt.Errorf("wrong defaults.speakers %d", res.Speakers)
	}
	return res, nil
}

// ServerURLs keeps the server endpoints
type ServerURLs struct {
	Upload string
	Logs   string
	Clear  string
}

// URLs makes server endpoints from the base URL
func URLs(c *viper.Viper, base string) ServerURLs {
	base = strings.TrimSuffix(base, "/")
	return ServerURLs{Upload: base + c.GetString("server.uploadPath"),
		Logs:  base + c.GetString("server.logsPath"),
		Clear: base + c.GetString("server.clearPath")}
}

func duration(c *viper.Viper, key string) (time.Duration, error) {
	res := c.GetDuration(key)
	if res <= 0 {
		return 0, fmt.Errorf("wrong %s '%s'", key, c.GetString(key))
	}
	return res, nil
}
