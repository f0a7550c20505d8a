// Package config provides configuration structures and utilities for
// protectmyart. It defines the coordination timeouts, the restricted page
// list, page loading settings and report output preferences.
package config
