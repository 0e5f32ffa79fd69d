package rpc

// Procedure names for the WorkerService RPCs. Shared
// between workerservice (which registers handlers under these names) and
// any caller (dispatcher, and workerservice itself when acting as a
// Transfer client against a peer).
const (
	ProcRun      = "Run"
	ProcCompose  = "Compose"
	ProcTransfer = "Transfer"
	ProcPut      = "Put"
	ProcGet      = "Get"
	ProcDelete   = "Delete"
)
