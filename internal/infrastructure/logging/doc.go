// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Bridge components receive a *zap.Logger already tagged with the
// micro-app identity (see Logger.ForApp) and name themselves:
//
//	log := logger.ForApp(appID, sessionID).Named("router")
//	log.Warn("unknown topic", zap.String("topic", string(env.Topic)))
package logging
