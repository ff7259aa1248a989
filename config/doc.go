// Package config loads service configuration from a YAML file, a .env file
// and the process environment, in that order of precedence (lowest first).
//
// Environment variables map onto nested keys by splitting on underscores, so
// MODEL_BEAM_SIZE fills model.beam_size. Flat legacy names can be mapped with
// WithAliases:
//
//	var cfg app.Config
//	err := config.LoadConfig("whisperd", &cfg,
//		config.WithAliases(map[string]string{"num_workers": "model.workers"}))
package config
