package blockedjob

// StatusChanged is published after a blocked job's status was updated.
// Current carries the record as stored after the change.
type StatusChanged struct {
	Previous Status
	Current  BlockedJob
}

// Created is published when a workflow run gets blocked.
type Created struct {
	Job BlockedJob
}
