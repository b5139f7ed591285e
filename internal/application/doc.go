// Package application provides application initialization and dependency wiring.
// It resolves the billing settings, builds the metrics collector, handlers,
// routers and HTTP server, and runs the optional Stripe plan verification, so
// the main package stays focused on CLI parsing and orchestration.
package application
