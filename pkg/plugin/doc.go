// Package plugin defines the capability contract every downstream integration
// implements so that felix can hand it a freshly rotated access key.
//
// A downstream service (a CI system, a log collector, a commerce platform) is
// anything that stores a copy of an IAM user's access key. felix never knows
// how a service stores it; it only relies on two operations:
//
//   - CheckForActiveKey confirms that the service currently holds the key the
//     identity provider reports as Active. It fails when the service holds a
//     different key, and may fail when it holds none at all.
//   - CreateOrUpdateKey makes the service hold the given key, creating the
//     resource when it is absent and updating it otherwise. It must be safe to
//     call again with the same key.
//
// Both operations receive a locator: the part of the IAM user's path below the
// service segment, with the user name as the final element. Only the plugin
// knows what the locator means (group/project, collector/source, org/repo).
//
// # Implementing a Plugin
//
//	type MyService struct {
//	    client *http.Client
//	    token  string
//	    cached *remoteState // memo for this rotation pass only
//	}
//
//	func NewMyService(settings plugin.Settings) (plugin.Plugin, error) {
//	    token, err := settings.Required("token")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &MyService{client: http.DefaultClient, token: token}, nil
//	}
//
// and register the factory once at start-up:
//
//	registry.Register("myservice", NewMyService)
//
// The registry builds a fresh instance for every identity in every run, so a
// plugin may memoize one downstream lookup in a private field without any
// locking. Instances are never shared across identities.
//
// # Key Material
//
// Key carries the new secret access key inside a memguard enclave. Call
// Secret only when building the outbound request and never log the result;
// wrap it in logging.Secret if it has to pass through a formatter.
package plugin
