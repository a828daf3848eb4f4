// Package core defines the shared data model and collaborator interfaces for
// the Conclave coordination engine.
//
// It contains the session state container, the artifacts produced by each
// negotiation phase (contributions, leadership records, consensus decisions,
// conflicts, bids, allocated tasks) and the interfaces of the external
// collaborators the engine consumes but does not implement: the opportunity
// detector, the append-only event log and the consensus service.
//
// The package is intentionally dependency-free so every phase package can
// import it without cycles.
package core
