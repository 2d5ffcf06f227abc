// Package plugins holds the downstream integrations that receive rotated
// access keys, and the registry that maps a service name to them.
//
// Every integration satisfies plugin.Plugin. A fresh instance is built for
// each identity, so lookups memoized on the instance (a SumoLogic source,
// a commercetools subscription) never outlive one rotation.
//
// Built-in integrations:
//
//	gitlab         project CI/CD variables AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY
//	sumologic      AWS polling source of a hosted collector
//	travis         repository environment variables (API v3)
//	jenkins        AWS credentials entry in the credentials store
//	commercetools  subscription destination
//
// Adding an integration means writing a plugin.Factory and registering it
// in NewRegistry.
package plugins
