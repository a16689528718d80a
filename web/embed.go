// Package web provides embedded static assets for the specula event viewer.
package web

import "embed"

// StaticFS contains the embedded viewer files, served at the server root.
//
//go:embed static/*
var StaticFS embed.FS
