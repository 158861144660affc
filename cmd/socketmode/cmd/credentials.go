package cmd

import (
	"socketmode/internal/config"
	"socketmode/internal/logging"
)

// configCredentials reloads the config on every handshake so a rotated app
// token is used by the next connection.
type configCredentials struct {
	configFile string
	logger     logging.Logger
}

func (c configCredentials) AppToken() (string, bool) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: c.configFile})
	if err != nil {
		c.logger.Warn("reload app token failed", "err", err.Error())
		return "", false
	}
	return cfg.AppToken, cfg.AppToken != ""
}
