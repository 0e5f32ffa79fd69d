package dispatcher

import (
	"bytes"
	"context"
	"net"

	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/rpc"
)

// callRun invokes the Run RPC on client and returns its response.
func callRun(ctx context.Context, client *rpc.Client, req modules.RunRequest) (modules.RunResponse, error) {
	var resp modules.RunResponse
	err := client.CallCtx(ctx, rpc.ProcRun, func(conn net.Conn) error {
		if err := rpc.WriteRequest(conn, req); err != nil {
			return err
		}
		return rpc.ReadResponse(conn, &resp)
	})
	return resp, err
}

// callTransfer invokes the Transfer RPC on client and returns its response.
func callTransfer(ctx context.Context, client *rpc.Client, req modules.TransferRequest) (modules.TransferResponse, error) {
	var resp modules.TransferResponse
	err := client.CallCtx(ctx, rpc.ProcTransfer, func(conn net.Conn) error {
		if err := rpc.WriteRequest(conn, req); err != nil {
			return err
		}
		return rpc.ReadResponse(conn, &resp)
	})
	return resp, err
}

// callPut streams content to client's Put RPC and returns its response.
func callPut(ctx context.Context, client *rpc.Client, content []byte) (modules.PutResponse, error) {
	var resp modules.PutResponse
	err := client.CallCtx(ctx, rpc.ProcPut, func(conn net.Conn) error {
		if err := rpc.WriteChunks(conn, bytes.NewReader(content)); err != nil {
			return err
		}
		return rpc.ReadResponse(conn, &resp)
	})
	return resp, err
}

// callGet fetches id's content from client's Get RPC.
func callGet(ctx context.Context, client *rpc.Client, id modules.FileId) ([]byte, error) {
	var content []byte
	err := client.CallCtx(ctx, rpc.ProcGet, func(conn net.Conn) error {
		if err := rpc.WriteRequest(conn, modules.GetRequest{ID: id}); err != nil {
			return err
		}
		if err := rpc.ReadStatus(conn); err != nil {
			return err
		}
		var err error
		content, err = rpc.ReadChunks(conn)
		return err
	})
	return content, err
}
