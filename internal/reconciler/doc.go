// Package reconciler applies detected filesystem changes to the persisted
// entity graph.
//
// A pass processes its change set in a fixed order: moves, then deletes,
// then creates, then modifications. Moves run before deletes so a relocated
// file is never treated as a delete plus an orphan create; creates run
// before modifications so forward-reference targets exist before the link
// resolution sweep.
//
// Each document is written inside its own transaction. A pass interrupted
// between documents leaves every document either fully old or fully new;
// the next pass re-detects whatever remains.
//
// Link resolution is two explicit passes: extraction writes links with a
// null target when the name matches no entity, then a single sweep after
// the batch resolves names that now match. The sweep never loops to
// fixpoint.
//
// One pass runs per project at a time; concurrent triggers for the same
// project get ErrSyncInProgress while different projects reconcile freely.
// Document-level failures are isolated in the sync report and a bounded
// recent-failure set; one broken file never blocks the batch.
package reconciler
