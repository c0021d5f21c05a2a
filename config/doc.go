// Package config loads the drying assistant configuration.
//
// Values come from built-in defaults, an optional YAML file, an optional
// .env file and DRYASSIST_* environment variables, in that order. The
// STABILITY_API_KEY and OPENROUTER_API_KEY names are honoured as fallbacks
// for the two credentials.
package config
