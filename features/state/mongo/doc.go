// Package mongo provides a MongoDB-backed implementation of the agent state
// store. Build the low-level client via features/state/mongo/clients/mongo and
// pass it to NewStore so engines can persist session envelopes in MongoDB.
package mongo
