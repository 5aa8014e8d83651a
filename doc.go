// Package flagprobe evaluates feature toggles locally against a toggle set
// that is kept in sync with a remote toggle service in the background.
//
// A Client is built from a validated ServiceURL, a Config and a User:
//
//	remote, err := flagprobe.BuildURL("https://toggles.example.com")
//	cfg, err := flagprobe.NewConfig(remote, "client-sdk-key", 10, 2)
//	client, err := flagprobe.New(cfg, flagprobe.NewUser("user-1").With("city", "1"))
//	defer client.Close()
//
//	if client.BoolValue("new-ui", false) {
//		// ...
//	}
//
// Evaluation never blocks on the network and never returns an error: missing
// toggles and type mismatches fall back to the supplied default and report
// why in the Detail's Reason.
//
// NewForTest builds a Client from a fixed key to value map without any
// network activity.
package flagprobe
