// SPDX-License-Identifier: MPL-2.0

// Package config handles userpack configuration using Viper with CUE as the file format.
//
// Configuration is read from userpack.cue in the project directory (or the file
// given with --config) and validated against an embedded CUE schema. Unset fields
// take the values from DefaultConfig. USERSCRIPT_UPDATE_URL, from the process
// environment or the project's .env file, overrides update_url.
package config
