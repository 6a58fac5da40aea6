package auction

import (
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/check"
)

// reasonOf extracts the rejection reason, failing the test if err is not a
// ValidationError.
func reasonOf(t *testing.T, err error) RejectReason {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return verr.Reason
}

func TestChainRegistry_AcceptsRegisteredSeller(t *testing.T) {
	seller := newSigner(t)
	chains := testChains(seller)

	l := signedListing(t, seller, 100)
	check.Nil(t, chains.ValidateListing(l))
}

func TestChainRegistry_UnknownChain(t *testing.T) {
	seller := newSigner(t)
	chains := testChains(seller)

	l := signedListing(t, seller, 100)
	l.ChainID = 999

	check.Equal(t, ReasonUnknownChain, reasonOf(t, chains.ValidateListing(l)))
}

func TestChainRegistry_UnregisteredSeller(t *testing.T) {
	seller := newSigner(t)
	stranger := newSigner(t)
	chains := testChains(seller)

	l := signedListing(t, stranger, 100)
	check.Equal(t, ReasonSellerNotRegistered, reasonOf(t, chains.ValidateListing(l)))
}

func TestChainRegistry_SellerMatchIsCaseInsensitive(t *testing.T) {
	seller := newSigner(t)
	chains := testChains(seller)

	l := signedListing(t, seller, 100)
	l.SellerAddress = strings.ToLower(l.SellerAddress)
	check.Nil(t, chains.ValidateListing(l))
}

func TestChainRegistry_BlockspaceOverChainMax(t *testing.T) {
	seller := newSigner(t)
	chains := testChains(seller)

	l := signedListing(t, seller, 100)
	l.BlockspaceSize = testBlockspace + 1

	check.Equal(t, ReasonInvalidListing, reasonOf(t, chains.ValidateListing(l)))
}
