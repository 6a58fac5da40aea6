package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/cloudx-io/blockauction/core"
)

var log = logging.Logger("blockauction/store")

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// PostgresStore is the production Store backed by the schema in migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to postgresURI, applies pending migrations, and
// returns the store.
func NewPostgresStore(postgresURI string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", postgresURI)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Debugf("schema up to date")
	return nil
}

// constraintErr maps a unique-violation on a named constraint to its sentinel.
func constraintErr(err error, constraint string, sentinel error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint {
		return sentinel
	}
	return err
}

func (s *PostgresStore) CreateAuction(ctx context.Context, a *core.Auction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO auctions (auction_id, chain_id, block_number, seller_address,
		    blockspace_size, start_time, end_time, seller_signature, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.AuctionID, int64(a.ChainID), int64(a.BlockNumber), a.SellerAddress,
		int64(a.BlockspaceSize), a.StartTime, a.EndTime, a.SellerSignature, string(a.State))
	if err != nil {
		if e := constraintErr(err, "auctions_slot_active", ErrDuplicateSlot); e == ErrDuplicateSlot {
			return e
		}
		if e := constraintErr(err, "auctions_pkey", ErrDuplicateSlot); e == ErrDuplicateSlot {
			return e
		}
		return fmt.Errorf("inserting auction: %w", err)
	}
	if err := appendStateLog(ctx, tx, a.AuctionID, a.State, ""); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetAuction(ctx context.Context, auctionID string) (*core.Auction, error) {
	var (
		a          core.Auction
		chainID    int64
		blockNum   int64
		blockspace int64
		state      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT auction_id, chain_id, block_number, seller_address, blockspace_size,
		    start_time, end_time, seller_signature, state
		 FROM auctions WHERE auction_id = $1`, auctionID).
		Scan(&a.AuctionID, &chainID, &blockNum, &a.SellerAddress, &blockspace,
			&a.StartTime, &a.EndTime, &a.SellerSignature, &state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	a.ChainID = uint64(chainID)
	a.BlockNumber = uint64(blockNum)
	a.BlockspaceSize = uint64(blockspace)
	a.State = core.AuctionState(state)
	return &a, nil
}

func (s *PostgresStore) UpdateAuctionState(ctx context.Context, auctionID string, state core.AuctionState, errorCause string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE auctions SET state = $2, error_cause = $3 WHERE auction_id = $1`,
		auctionID, string(state), errorCause)
	if err != nil {
		return fmt.Errorf("updating auction state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := appendStateLog(ctx, tx, auctionID, state, errorCause); err != nil {
		return err
	}
	return tx.Commit()
}

func appendStateLog(ctx context.Context, tx *sql.Tx, auctionID string, state core.AuctionState, errorCause string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO auction_state_log (auction_id, state, error_cause) VALUES ($1, $2, $3)`,
		auctionID, string(state), errorCause)
	if err != nil {
		return fmt.Errorf("appending state log: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateBid(ctx context.Context, b *core.Bid) error {
	txList, err := json.Marshal(b.TxList)
	if err != nil {
		return fmt.Errorf("encoding tx list: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bids (bid_id, auction_id, bidder_address, requested_size,
		    price, nonce, bid_signature, submitted_at, tx_list)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		int64(b.BidID), b.AuctionID, b.BidderAddress, int64(b.RequestedSize),
		b.Price, int64(b.Nonce), b.BidSignature, b.SubmittedAt, txList)
	if err != nil {
		if e := constraintErr(err, "bids_bidder_nonce", ErrNonceReplay); e == ErrNonceReplay {
			return e
		}
		return fmt.Errorf("inserting bid: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasNonce(ctx context.Context, bidderAddress string, nonce uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bids WHERE bidder_address = $1 AND nonce = $2)`,
		bidderAddress, int64(nonce)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking nonce: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListBids(ctx context.Context, auctionID string) ([]core.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bid_id, auction_id, bidder_address, requested_size, price, nonce,
		    bid_signature, submitted_at, tx_list
		 FROM bids WHERE auction_id = $1 ORDER BY bid_id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bids []core.Bid
	for rows.Next() {
		var (
			b      core.Bid
			bidID  int64
			size   int64
			nonce  int64
			txList []byte
		)
		if err := rows.Scan(&bidID, &b.AuctionID, &b.BidderAddress, &size, &b.Price,
			&nonce, &b.BidSignature, &b.SubmittedAt, &txList); err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		b.BidID = uint64(bidID)
		b.RequestedSize = uint64(size)
		b.Nonce = uint64(nonce)
		if err := json.Unmarshal(txList, &b.TxList); err != nil {
			return nil, fmt.Errorf("decoding tx list: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func (s *PostgresStore) CreateSettlement(ctx context.Context, r *core.SettlementRecord) error {
	allocation, err := json.Marshal(r.Allocation)
	if err != nil {
		return fmt.Errorf("encoding allocation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settlements (auction_id, allocation_json, total_allocated,
		    input_hash, seal_nonce, attestation_quote)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.AuctionID, allocation, int64(r.TotalAllocated), r.InputHash, r.Nonce, r.Quote)
	if err != nil {
		if e := constraintErr(err, "settlements_pkey", ErrDuplicateSettlement); e == ErrDuplicateSettlement {
			return e
		}
		return fmt.Errorf("inserting settlement: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSettlement(ctx context.Context, auctionID string) (*core.SettlementRecord, error) {
	var (
		r          core.SettlementRecord
		allocation []byte
		total      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT auction_id, allocation_json, total_allocated, input_hash, seal_nonce,
		    attestation_quote
		 FROM settlements WHERE auction_id = $1`, auctionID).
		Scan(&r.AuctionID, &allocation, &total, &r.InputHash, &r.Nonce, &r.Quote)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting settlement: %w", err)
	}
	if err := json.Unmarshal(allocation, &r.Allocation); err != nil {
		return nil, fmt.Errorf("decoding allocation: %w", err)
	}
	r.TotalAllocated = uint64(total)
	return &r, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
