// Package fakes provides test doubles for felix's provider and plugin
// interfaces.
//
// Fakes are manually implemented (not generated) to give precise control over
// behavior and to record every call. The key store and plugin fakes can share
// one CallLog so tests can assert on the order of operations across both:
//
//	log := &fakes.CallLog{}
//	store := fakes.NewFakeKeyStore(log)
//	store.AddIdentity(fakes.Identity("/service/gitlab/group/", "project"))
//	gitlab := fakes.NewFakePlugin("gitlab", log)
//
//	engine := rotation.NewEngine(store, fakes.NewFakeResolver(gitlab), settings, logger)
//	report := engine.RotateIdentity(ctx, store.Identities[0])
//	// log.Index("gitlab.CreateOrUpdateKey") < log.Index("store.DeactivateKey")
package fakes
