package config

import "go.uber.org/zap"

// NewLogger returns a production JSON logger for prod, a development logger
// otherwise.
func NewLogger(env string) *zap.Logger {
	if env == "prod" {
		log, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return log
}
