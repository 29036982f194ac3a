// Package config loads launcher configuration.
//
// Two sources are combined:
//
//   - Env: process environment variables prefixed with ALLYCRAFT_, read once
//     at startup with envconfig. These select where the launcher lives and
//     where packages come from.
//   - Settings: <base>/settings.toml, written by the launcher itself when the
//     user changes the data root or adds launch variables.
//
// Example settings.toml:
//
//	custom_data_path = "/run/media/deck/sdcard/allycraft"
//
//	[launch.env]
//	MANGOHUD = "1"
//	DXVK_HUD = "fps"
//
// User supplied paths may start with ~ and are expanded to the home
// directory.
package config
