// Package mazerunner is a client for the MazeRunner deception platform REST API.
//
// A Client authenticates with a Hawk API key pair, pins the management server's
// CA certificate and discovers the resource endpoints on connect:
//
//	client, err := mazerunner.NewClient(ctx, mazerunner.Config{
//		Host:        "10.0.0.5",
//		APIKey:      keyID,
//		APISecret:   secret,
//		Certificate: "/etc/mazerunner/MazeRunner.crt",
//	}, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	decoy, err := client.Decoys().Create(ctx, mazerunner.DecoySpec{
//		Name: "trap-1", Hostname: "files01", OS: "Ubuntu_1404", VMType: "KVM",
//	})
//
// Every resource type is served by a Collection and represented by an Entity,
// both driven by the Schema registered for the type. Typed wrappers such as
// DecoyCollection and Decoy add the resource-specific actions.
package mazerunner
