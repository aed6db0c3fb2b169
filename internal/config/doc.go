// Package config provides configuration loading and validation for the
// annotation service. It handles YAML-based configuration with struct
// validation and built-in defaults for running without a config file.
package config
