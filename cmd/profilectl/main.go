// Package main provides profilectl, an offline companion to the profile-ml service.
//
// Usage:
//
//	profilectl generate --decisions decisions.json
//	profilectl catalog --format markdown
//	profilectl recognize --image photo.jpg --validate
//	profilectl stats --since 2026-01-01T00:00:00Z
package main

func main() {
	Execute()
}
