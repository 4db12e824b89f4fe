package logging

import "go.uber.org/zap"

// New builds a sugared zap logger. Mode "prod"/"production" selects the JSON
// production encoder, anything else the console development encoder.
func New(mode string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch mode {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
