/*
Package netbricks networks the objects of a game engine scene through a replication service.

Entity types

Every networked object type has a directory in the data directory holding an actor.definition file. The file
declares replicated attributes, RPCs, base templates, default properties and the behavior states to activate per
network mode and role. Templates live in templates/<name>.template and are merged in C3 order.

Messages

The game talks to the bridge through the message bus. Subjects start with a tag telling the message family:

	@rpc              invoke an RPC of the sending object
	!attribute        re-read a replicated attribute
	->message         deliver a message to the sending object only
	#method           call a bridge method (sync_properties, set_network_states)
	CHANGE_PAWN::Type replace the pawn of the sending object's controller
	NEW_PAWN->message forward a message to the pawn the sending object created
	SCENE->message    re-broadcast a message to the scene
	NEW_PAWN=Type     create a pawn for the next waiting controller
	NETMODE=SERVER    start the network
	CONNECT->host::port

Author-facing subjects on message sensors and actuators are rewritten when an object is bound, so they address one
entity on the wire.

Run the bridge

	engine := myEngineAdapter()
	bridge, err := netbricks.NewBridge(engine, "network_data", nil)
	if err != nil {
		log.Fatal(err)
	}
	bridge.Run(context.Background())

Configuration

main.definition holds the listen port, full update rate and metrics interval. The optional bridge.ini [bridge]
section sets the log level, the disconnect timeout and the version check endpoint.
*/
package netbricks
