package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/blockauction/auction"
	"github.com/cloudx-io/blockauction/auctionapi"
)

// EnclaveServer serves the auction protocol over vsock. Each connection
// carries one JSON request and receives one JSON response.
type EnclaveServer struct {
	cfg      *Config
	engine   *auction.Orchestrator
	keys     *KeyManager
	attester auction.Attester
}

// NewEnclaveServer wires the server around a running engine.
func NewEnclaveServer(cfg *Config, engine *auction.Orchestrator, keys *KeyManager, attester auction.Attester) *EnclaveServer {
	return &EnclaveServer{cfg: cfg, engine: engine, keys: keys, attester: attester}
}

func (s *EnclaveServer) Start() error {
	listener, err := vsock.Listen(s.cfg.VsockPort, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: TEE auction server listening on vsock port %d", s.cfg.VsockPort)

	semaphore := make(chan struct{}, s.cfg.MaxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.cfg.MaxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(conn net.Conn) {
	reqID := uuid.New().String()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: [%s] Panic recovered in handleConnection: %v", reqID, r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: [%s] Failed to close connection: %v", reqID, err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ConnReadLimit))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: [%s] Failed to read request: %v", reqID, err)
		return
	}

	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(buf.Bytes(), &baseReq); err != nil {
		log.Printf("ERROR: [%s] Failed to decode base request: %v", reqID, err)
		return
	}

	log.Printf("INFO: [%s] Received request type: %s", reqID, baseReq.Type)
	response := s.route(baseReq.Type, buf.Bytes(), reqID)

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: [%s] Failed to encode response: %v", reqID, err)
	} else {
		log.Printf("INFO: [%s] Successfully sent response for %s", reqID, baseReq.Type)
	}
}

func (s *EnclaveServer) route(reqType string, body []byte, reqID string) any {
	ctx := context.Background()

	switch reqType {
	case auctionapi.TypePing:
		return &auctionapi.PongResponse{
			Type:      "pong",
			Message:   "TEE auction server is healthy",
			Timestamp: time.Now().Unix(),
		}

	case auctionapi.TypeKey:
		keyResp, err := HandleKeyRequest(s.attester, s.keys)
		if err != nil {
			log.Printf("ERROR: [%s] Key request failed: %v", reqID, err)
			return errorResponse(err)
		}
		return keyResp

	case auctionapi.TypeListing:
		var req auctionapi.ListingRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return decodeError(reqID, err)
		}
		a, err := s.engine.SubmitListing(ctx, req.Listing)
		if err != nil {
			log.Printf("ERROR: [%s] Listing rejected: %v", reqID, err)
			return errorResponse(err)
		}
		return &auctionapi.ListingResponse{Type: "listing_response", Auction: *a}

	case auctionapi.TypeBid:
		var req auctionapi.BidRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return decodeError(reqID, err)
		}
		sub, err := s.bidSubmission(&req)
		if err != nil {
			log.Printf("ERROR: [%s] Bid decryption failed: %v", reqID, err)
			return errorResponse(err)
		}
		bidID, err := s.engine.SubmitBid(ctx, sub)
		if err != nil {
			log.Printf("ERROR: [%s] Bid rejected: %v", reqID, err)
			return errorResponse(err)
		}
		return &auctionapi.BidResponse{Type: "bid_response", AuctionID: req.AuctionID, BidID: bidID}

	case auctionapi.TypeClose:
		var req auctionapi.CloseRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return decodeError(reqID, err)
		}
		a, err := s.engine.CloseAuction(ctx, req.AuctionID)
		if err != nil {
			log.Printf("ERROR: [%s] Close failed: %v", reqID, err)
			return errorResponse(err)
		}
		return &auctionapi.StateResponse{Type: "state_response", Auction: *a}

	case auctionapi.TypeState:
		var req auctionapi.StateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return decodeError(reqID, err)
		}
		a, bids, err := s.engine.AuctionState(ctx, req.AuctionID)
		if err != nil {
			return errorResponse(err)
		}
		return &auctionapi.StateResponse{Type: "state_response", Auction: *a, Bids: bids}

	case auctionapi.TypeWinner:
		var req auctionapi.WinnerRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return decodeError(reqID, err)
		}
		txs, err := s.engine.WinnerTxList(ctx, req.AuctionID)
		if err != nil {
			return errorResponse(err)
		}
		return &auctionapi.WinnerResponse{Type: "winner_response", AuctionID: req.AuctionID, TxList: txs}

	case auctionapi.TypeSettlement:
		var req auctionapi.SettlementRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return decodeError(reqID, err)
		}
		record, err := s.engine.Settlement(ctx, req.AuctionID)
		if err != nil {
			return errorResponse(err)
		}
		return &auctionapi.SettlementResponse{
			Type:        "settlement_response",
			Settlement:  *record,
			Attestation: auctionapi.AttestationCOSE(record.Quote).EncodeBase64(),
		}

	default:
		return &auctionapi.ErrorResponse{
			Type:    auctionapi.TypeError,
			Message: fmt.Sprintf("Unknown request type: %s", reqType),
		}
	}
}

// bidSubmission converts a wire bid into an engine submission, decrypting
// the price inside the enclave when the bidder encrypted it.
func (s *EnclaveServer) bidSubmission(req *auctionapi.BidRequest) (auction.BidSubmission, error) {
	price := req.Price
	if req.EncryptedPrice != nil {
		decrypted, err := DecryptBidPrice(req.EncryptedPrice, s.keys.privateKey)
		if err != nil {
			return auction.BidSubmission{}, fmt.Errorf("decrypt bid price: %w", err)
		}
		price = decrypted
	}
	return auction.BidSubmission{
		AuctionID:     req.AuctionID,
		BidderAddress: req.BidderAddress,
		BidSignature:  req.BidSignature,
		RequestedSize: req.RequestedSize,
		Price:         price,
		Nonce:         req.Nonce,
		TxList:        req.TxList,
	}, nil
}

func decodeError(reqID string, err error) *auctionapi.ErrorResponse {
	log.Printf("ERROR: [%s] Failed to decode request: %v", reqID, err)
	return &auctionapi.ErrorResponse{
		Type:    auctionapi.TypeError,
		Message: fmt.Sprintf("Failed to decode request: %v", err),
	}
}

// errorResponse maps engine errors onto the wire, exposing the machine
// readable reject reason for validation errors.
func errorResponse(err error) *auctionapi.ErrorResponse {
	resp := &auctionapi.ErrorResponse{Type: auctionapi.TypeError, Message: err.Error()}

	var verr *auction.ValidationError
	if errors.As(err, &verr) {
		resp.Reason = string(verr.Reason)
	}
	var serr *auction.StateError
	if errors.As(err, &serr) {
		resp.Reason = "invalid_state_transition"
	}
	return resp
}
