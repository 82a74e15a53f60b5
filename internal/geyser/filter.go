package geyser

import (
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// TransactionFilterName labels the transaction filter in subscribe requests;
// it is echoed back in the filters field of matching updates.
const TransactionFilterName = "pump_subscription"

// keepAlivePingID identifies the client keep-alive ping sent when no
// addresses are being watched.
const keepAlivePingID = 1

// BuildSubscribeRequest builds the geyser subscription for a watchlist.
// A non-empty watchlist produces a transaction filter (no failed or vote
// transactions, PROCESSED commitment). An empty watchlist produces a
// keep-alive ping so the connection stays open without streaming data.
func BuildSubscribeRequest(watchlist []string) *pb.SubscribeRequest {
	if len(watchlist) == 0 {
		return &pb.SubscribeRequest{
			Ping: &pb.SubscribeRequestPing{Id: keepAlivePingID},
		}
	}

	accounts := make([]string, len(watchlist))
	copy(accounts, watchlist)

	failed := false
	vote := false
	commitment := pb.CommitmentLevel_PROCESSED

	return &pb.SubscribeRequest{
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			TransactionFilterName: {
				AccountInclude: accounts,
				Failed:         &failed,
				Vote:           &vote,
			},
		},
		Commitment: &commitment,
	}
}
