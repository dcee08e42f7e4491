// Package config loads shivuk's TOML configuration.
//
// Load searches the --config path, ~/.config/shivuk/config.toml, and
// ./shivuk.toml in that order, then fills defaults, expands ~ in paths, and
// applies the GEMINI_API_KEY, API_KEY, SHIVUK_USER_ID, and SHIVUK_NTFY_TOPIC
// environment fallbacks before validating. Derived locations (document store,
// blob directory, prefs file, log file) are methods on Config so every
// component resolves them the same way.
package config
