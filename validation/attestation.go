package validation

import (
	"fmt"

	"github.com/cloudx-io/blockauction/auctionapi"
)

// validateEnclaveTrust runs the checks every attestation must pass before
// its contents can be trusted: PCR measurements against the known-good
// image sets, certificate chain to the AWS Nitro root CA, and the COSE
// signature. Check outcomes go through detail; an error means the checks
// could not be performed at all.
func validateEnclaveTrust(attestation auctionapi.AttestationCOSEBase64, doc auctionapi.AttestationDoc, pcrConfigPath string, detail func(string, ...any)) (pcrsValid, certValid, sigValid bool, err error) {
	configPath := pcrConfigPath
	if configPath == "" {
		configPath = DefaultPCRConfigPath()
	}
	knownPCRs, err := LoadPCRsFromFile(configPath)
	if err != nil {
		return false, false, false, fmt.Errorf("failed to load PCR configuration: %w", err)
	}

	pcrsValid, matchedSet := ValidatePCRs(doc.PCRs, knownPCRs)
	if pcrsValid {
		detail("PCR measurements valid (set #%d, commit %s)", matchedSet, knownPCRs[matchedSet].CommitHash)
	} else {
		detail("PCR0: %s (no match)", doc.PCRs.ImageFileHash)
		detail("PCR1: %s (no match)", doc.PCRs.KernelHash)
		detail("PCR2: %s (no match)", doc.PCRs.ApplicationHash)
	}

	switch {
	case doc.Certificate == "":
		detail("Missing certificate")
	case len(doc.CABundle) == 0:
		detail("Missing CA bundle")
	default:
		if chainErr := ValidateCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp); chainErr != nil {
			detail("Certificate chain validation failed: %v", chainErr)
		} else {
			certValid = true
			detail("Certificate chain verified")
		}
	}

	if sigErr := VerifyCOSESignature(attestation, doc.Certificate); sigErr != nil {
		detail("COSE signature verification failed: %v", sigErr)
	} else {
		sigValid = true
		detail("COSE signature verified")
	}

	return pcrsValid, certValid, sigValid, nil
}
