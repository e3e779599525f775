// Package domain defines the types and consumer-side interfaces shared by the
// notification core (realtime, app) and its adapters (postgres, redis,
// httpserver). No implementation code, only contracts.
package domain
