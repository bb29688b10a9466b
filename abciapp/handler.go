package abciapp

import (
	"fmt"

	abci "github.com/tendermint/tendermint/abci/types"
)

// handlerFunc serves one request kind.
type handlerFunc func(*abci.Request) *abci.Response

// requiredTags is the full request set of the protocol. The handler table
// is checked against it at construction, so a missing handler is a startup
// failure instead of a missing-dispatch surprise at runtime.
var requiredTags = []string{
	"echo", "flush", "info", "set_option", "init_chain", "query",
	"check_tx", "deliver_tx", "begin_block", "end_block", "commit",
	"list_snapshots", "offer_snapshot", "load_snapshot_chunk", "apply_snapshot_chunk",
}

func (b *Bridge) registerHandlers() {
	b.handlers = map[string]handlerFunc{
		"echo": func(req *abci.Request) *abci.Response {
			return abci.ToResponseEcho(req.GetEcho().Message)
		},
		"flush": func(req *abci.Request) *abci.Response {
			return abci.ToResponseFlush()
		},
		"info": func(req *abci.Request) *abci.Response {
			return abci.ToResponseInfo(b.Info(*req.GetInfo()))
		},
		"set_option": func(req *abci.Request) *abci.Response {
			return abci.ToResponseSetOption(b.SetOption(*req.GetSetOption()))
		},
		"init_chain": func(req *abci.Request) *abci.Response {
			return abci.ToResponseInitChain(b.InitChain(*req.GetInitChain()))
		},
		"query": func(req *abci.Request) *abci.Response {
			return abci.ToResponseQuery(b.Query(*req.GetQuery()))
		},
		"check_tx": func(req *abci.Request) *abci.Response {
			return abci.ToResponseCheckTx(b.CheckTx(*req.GetCheckTx()))
		},
		"deliver_tx": func(req *abci.Request) *abci.Response {
			return abci.ToResponseDeliverTx(b.DeliverTx(*req.GetDeliverTx()))
		},
		"begin_block": func(req *abci.Request) *abci.Response {
			return abci.ToResponseBeginBlock(b.BeginBlock(*req.GetBeginBlock()))
		},
		"end_block": func(req *abci.Request) *abci.Response {
			return abci.ToResponseEndBlock(b.EndBlock(*req.GetEndBlock()))
		},
		"commit": func(req *abci.Request) *abci.Response {
			return abci.ToResponseCommit(b.Commit())
		},
		"list_snapshots": func(req *abci.Request) *abci.Response {
			return abci.ToResponseListSnapshots(b.ListSnapshots(*req.GetListSnapshots()))
		},
		"offer_snapshot": func(req *abci.Request) *abci.Response {
			return abci.ToResponseOfferSnapshot(b.OfferSnapshot(*req.GetOfferSnapshot()))
		},
		"load_snapshot_chunk": func(req *abci.Request) *abci.Response {
			return abci.ToResponseLoadSnapshotChunk(b.LoadSnapshotChunk(*req.GetLoadSnapshotChunk()))
		},
		"apply_snapshot_chunk": func(req *abci.Request) *abci.Response {
			return abci.ToResponseApplySnapshotChunk(b.ApplySnapshotChunk(*req.GetApplySnapshotChunk()))
		},
	}
	for _, tag := range requiredTags {
		if _, ok := b.handlers[tag]; !ok {
			panic(fmt.Sprintf("abci bridge: no handler registered for %q", tag))
		}
	}
}

// Handle dispatches a raw protocol request by its kind tag. Requests outside
// the understood set get an explicit exception response with a readable
// error instead of being dropped.
func (b *Bridge) Handle(req *abci.Request) *abci.Response {
	tag := requestTag(req)
	handler, ok := b.handlers[tag]
	if !ok {
		b.logger.Error("received unknown ABCI request", "tag", tag)
		return abci.ToResponseException(fmt.Sprintf("cannot handle request %q", tag))
	}
	b.logger.Debug("handling ABCI request", "tag", tag)
	return handler(req)
}

func requestTag(req *abci.Request) string {
	switch req.Value.(type) {
	case *abci.Request_Echo:
		return "echo"
	case *abci.Request_Flush:
		return "flush"
	case *abci.Request_Info:
		return "info"
	case *abci.Request_SetOption:
		return "set_option"
	case *abci.Request_InitChain:
		return "init_chain"
	case *abci.Request_Query:
		return "query"
	case *abci.Request_CheckTx:
		return "check_tx"
	case *abci.Request_DeliverTx:
		return "deliver_tx"
	case *abci.Request_BeginBlock:
		return "begin_block"
	case *abci.Request_EndBlock:
		return "end_block"
	case *abci.Request_Commit:
		return "commit"
	case *abci.Request_ListSnapshots:
		return "list_snapshots"
	case *abci.Request_OfferSnapshot:
		return "offer_snapshot"
	case *abci.Request_LoadSnapshotChunk:
		return "load_snapshot_chunk"
	case *abci.Request_ApplySnapshotChunk:
		return "apply_snapshot_chunk"
	default:
		return fmt.Sprintf("%T", req.Value)
	}
}
