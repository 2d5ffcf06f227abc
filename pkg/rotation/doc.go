// Package rotation implements felix's access-key rotation workflow.
//
// # Overview
//
// felix rotates the access keys of IAM users and hands each new key to the
// downstream service that uses it. The service, and where inside it the key
// lives, are encoded in the user's path:
//
//	/service/gitlab/platform/deploy-tools/   user: release-bot
//	         ^^^^^^ ^^^^^^^^^^^^^^^^^^^^^^         ^^^^^^^^^^^
//	         plugin          locator: platform/deploy-tools/release-bot
//
// # Rotation Workflow
//
// Engine.RotateIdentity runs one identity through a fixed sequence of steps:
//
//	STARTED
//	  → PLUGIN_RESOLVED          plugin built from its settings
//	  → (purge)                  last cycle's Inactive keys deleted, best effort
//	  → KEYS_LISTED              at most one Active key allowed
//	  → [ACTIVE_KEY_VERIFIED]    downstream holds the Active key
//	  → NEW_KEY_CREATED
//	  → PROPAGATED               downstream now holds the new key
//	  → [OLD_KEY_DEACTIVATED]
//	  → SUCCESS
//
// Any failing step ends the identity in ERROR. Nothing is rolled back: a key
// that was created but not propagated, or propagated while the old key stays
// Active, is reported so an operator can finish the job by hand. The old key
// is never deactivated before the new one has been propagated, and a
// deactivated key is only deleted on the following run, which gives consumers
// one full cycle to pick up the new key.
//
// Failures never escape an identity. RotateIdentity always returns a Report;
// the error, if any, is its Error field.
//
// # Orchestration
//
// Orchestrator.Run lists the identities under a path prefix once, rotates
// all of them concurrently, and publishes a Summary to a ReportSink. Reports
// keep the order in which the identities were discovered. Only a discovery
// failure or a sink failure makes Run return an error.
//
// # Usage
//
//	engine := rotation.NewEngine(store, registry, cfg.Plugins, logger)
//	orch := rotation.NewOrchestrator(store, engine, sink, logger)
//
//	summary, err := orch.Run(ctx, "/service/")
//	if err != nil {
//	    return fmt.Errorf("rotation run failed: %w", err)
//	}
//	fmt.Printf("[%s] rotated %d keys\n", summary.Status, summary.Count)
package rotation
